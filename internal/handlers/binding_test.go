package handlers

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindNestedOrFlat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	desc := "Monthly tuition"

	tests := []struct {
		name        string
		key         string
		body        string
		expected    FeeCategoryRequest
		expectError bool
	}{
		{
			name:     "Nested Structure",
			key:      "fee_category",
			body:     `{"fee_category": {"name": "Tuition", "description": "Monthly tuition"}}`,
			expected: FeeCategoryRequest{Name: "Tuition", Description: &desc},
		},
		{
			name:     "Flat Structure",
			key:      "fee_category",
			body:     `{"name": "Transport"}`,
			expected: FeeCategoryRequest{Name: "Transport"},
		},
		{
			name:     "Missing Key Falls Back To Flat",
			key:      "fee_category",
			body:     `{"other": "value", "name": "Library"}`,
			expected: FeeCategoryRequest{Name: "Library"},
		},
		{
			name:        "Invalid Type",
			key:         "fee_category",
			body:        `{"name": 42}`,
			expectError: true,
		},
		{
			name:        "Nested Key Present but Invalid Type",
			key:         "fee_category",
			body:        `{"fee_category": "some string"}`,
			expectError: true,
		},
		{
			name:        "Fails Validation",
			key:         "fee_category",
			body:        `{"fee_category": {"description": "no name"}}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var result FeeCategoryRequest
			err := BindNestedOrFlat(c, tt.key, &result)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestBindingErrors_FieldNames(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"student_id": 1, "amount": 10, "payment_method": "bitcoin"}`))

	var req CollectFeeRequest
	err := BindNestedOrFlat(c, "fee_collection", &req)
	require.Error(t, err)

	fields := bindingErrors(err)
	assert.Contains(t, fields, "payment_method")
	assert.Contains(t, fields["payment_method"], "cash")
}

func TestBindingErrors_Malformed(t *testing.T) {
	fields := bindingErrors(assert.AnError)
	assert.Equal(t, "malformed request body", fields["body"])
}
