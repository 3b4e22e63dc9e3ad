package handlers

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// BindNestedOrFlat binds the request body to obj, accepting either a body
// wrapped under key (e.g. {"fee_structure": {...}}) or the flat object, then
// runs the binding validator.
func BindNestedOrFlat(c *gin.Context, key string, obj interface{}) error {
	var bodyBytes []byte
	if c.Request.Body != nil {
		bodyBytes, _ = io.ReadAll(c.Request.Body)
	}
	// Restore body for future binding or subsequent reads
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	if err := decodeNestedOrFlat(bodyBytes, key, obj); err != nil {
		return err
	}
	return binding.Validator.ValidateStruct(obj)
}

func decodeNestedOrFlat(body []byte, key string, obj interface{}) error {
	var nestedMap map[string]json.RawMessage
	if err := json.Unmarshal(body, &nestedMap); err == nil {
		if val, ok := nestedMap[key]; ok {
			return json.Unmarshal(val, obj)
		}
	}
	return json.Unmarshal(body, obj)
}
