package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID принимает как числовые, так и строковые идентификаторы бэкенда
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type User struct {
	UserID ID     `json:"userid"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Folder string `json:"folder,omitempty"`
}

type Ticket struct {
	ID           ID     `json:"id"`
	Title        string `json:"title"`
	SerialNumber string `json:"serial_number"`
	Vacancy      int    `json:"vacancy"`
	Status       string `json:"status"`
	Client       struct {
		Name string `json:"name"`
	} `json:"client"`
	AssignedBy struct {
		ProfilePic string `json:"profile_pic"`
	} `json:"assigned_by"`
}

type Profile struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Parsed struct {
		Role              string `json:"role"`
		YearsOfExperience string `json:"years_of_experience"`
	} `json:"parsed"`
}
