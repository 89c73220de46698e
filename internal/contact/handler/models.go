package handler

import (
	"encoding/json"
	"errors"
)

// IdentifyRequest is the inbound payload of POST /identify.
type IdentifyRequest struct {
	Email       *string     `json:"email"`
	PhoneNumber *FlexString `json:"phoneNumber"`
}

// FlexString accepts a JSON string or number and holds its literal string
// form. Upstream clients send phone numbers both ways.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("phoneNumber must be a string or number")
	}
	*f = FlexString(n.String())
	return nil
}

// ContactPayload mirrors the upstream wire contract, including the
// long-standing primaryContatctId field name that clients depend on.
type ContactPayload struct {
	PrimaryContactID    int64    `json:"primaryContatctId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// IdentifyResponse is the success envelope of POST /identify.
type IdentifyResponse struct {
	Contact ContactPayload `json:"contact"`
}
