package auth

import (
	"strings"
	"unicode"

	"ledgerd/internal/apperr"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

const specialChars = `!@#$%^&*(),.?":{}|<>`

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword requires at least 8 characters with an uppercase letter,
// a digit and one of the special characters above.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.ErrWeakCredential
	}
	var upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !digit || !strings.ContainsAny(password, specialChars) {
		return apperr.ErrWeakCredential
	}
	return nil
}
