package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type depositInput struct {
	Amount      int64  `json:"amount" validate:"gt=0,lte=1000000"`
	Operator    string `json:"operator" validate:"required,oneof=moov yas-togo"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
}

func TestStruct(t *testing.T) {
	assert.Nil(t, Struct(depositInput{Amount: 100, Operator: "moov", PhoneNumber: "+22890000000"}))

	errs := Struct(depositInput{Amount: 0, Operator: "visa", PhoneNumber: "12ab"})
	assert.Equal(t, "amount must be greater than 0", errs["amount"])
	assert.Equal(t, "operator must be one of: moov yas-togo", errs["operator"])
	assert.Equal(t, "phone_number must be an international phone number such as +22890000000", errs["phone_number"])

	errs = Struct(depositInput{Amount: 1000001, Operator: "moov", PhoneNumber: "22890000000"})
	assert.Equal(t, "amount must be at most 1000000", errs["amount"])
	assert.Contains(t, errs, "phone_number", "the country code needs a leading +")

	assert.Nil(t, Struct(depositInput{Amount: 100, Operator: "moov"}))
}
