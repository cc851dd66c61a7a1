package sources

import (
	"github.com/tidwall/gjson"
)

// ExtractRecords resolves the record list from a catalog response body.
// Accepted shapes, checked in order:
//
//	[ ... ]
//	{"success": true, "products": [ ... ]}
//	{"products": [ ... ]}
//	{"data": [ ... ]}
//
// Anything else, including a body that is not valid JSON, is ErrInvalidFormat.
// A recognized shape holding an empty array returns no records and no error.
func ExtractRecords(body []byte) ([]gjson.Result, Shape, error) {
	if !gjson.ValidBytes(body) {
		return nil, "", ErrInvalidFormat
	}

	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return root.Array(), ShapeArray, nil
	}
	if !root.IsObject() {
		return nil, "", ErrInvalidFormat
	}

	if success := root.Get("success"); success.Exists() {
		if products := root.Get("products"); success.Bool() && products.IsArray() {
			return products.Array(), ShapeSuccessProducts, nil
		}
	}
	if products := root.Get("products"); products.IsArray() {
		return products.Array(), ShapeProducts, nil
	}
	if data := root.Get("data"); data.IsArray() {
		return data.Array(), ShapeData, nil
	}

	return nil, "", ErrInvalidFormat
}
