package handlers

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/perfect-api/apiserver/types"
)

// bcrypt ignores input past 72 bytes and x/crypto rejects it outright.
const maxPasswordBytes = 72

// SignupRequest is the body of signup and both user creation endpoints.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// Role is accepted on admin creation for compatibility; the endpoint
	// decides the role.
	Role string `json:"role,omitempty"`
}

func (r SignupRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.By(maxBytes(maxPasswordBytes))),
		validation.Field(&r.Role, validation.By(knownRole)),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// UpdateUserRequest carries optional profile changes.
type UpdateUserRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (r UpdateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(0, 200)),
		validation.Field(&r.Email, validation.Length(0, 254), validation.By(optionalEmail)),
	)
}

type ChangePasswordRequest struct {
	Password string `json:"password"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.By(maxBytes(maxPasswordBytes))),
	)
}

// UpdateRoleRequest names the new permission by id or by role name.
type UpdateRoleRequest struct {
	RoleID string `json:"roleId"`
	Role   string `json:"role"`
}

func (r UpdateRoleRequest) Validate() error {
	if r.RoleID == "" && r.Role == "" {
		return errors.New("roleId or role is required")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.RoleID, is.UUID),
	)
}

func maxBytes(limit int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(s) > limit {
			return fmt.Errorf("must be at most %d bytes", limit)
		}
		return nil
	}
}

// optionalEmail accepts a nil or blank email; blank means unchanged.
func optionalEmail(value interface{}) error {
	value, isNil := validation.Indirect(value)
	email, ok := value.(string)
	if isNil || !ok {
		return nil
	}
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return nil
	}
	return is.Email.Validate(trimmed)
}

func knownRole(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, ok := types.ParseRole(s); !ok {
		return errors.New("must be ADMIN or USER")
	}
	return nil
}
