package whatsapp

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
)

var ErrMissingCredentials = errors.New("whatsapp credentials not configured")

// Credentials authorize calls to the Cloud API for one business phone number.
type Credentials struct {
	Token         string
	PhoneNumberID string
}

func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.PhoneNumberID) != ""
}

type CredentialsProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials holds the current credentials and can be swapped on
// config reload.
type StaticCredentials struct {
	v atomic.Pointer[Credentials]
}

func NewStaticCredentials(c Credentials) *StaticCredentials {
	s := &StaticCredentials{}
	s.Set(c)
	return s
}

func (s *StaticCredentials) Set(c Credentials) {
	c.Token = strings.TrimSpace(c.Token)
	c.PhoneNumberID = strings.TrimSpace(c.PhoneNumberID)
	s.v.Store(&c)
}

func (s *StaticCredentials) Credentials(context.Context) (Credentials, error) {
	if s == nil {
		return Credentials{}, ErrMissingCredentials
	}
	c := s.v.Load()
	if c == nil || !c.Valid() {
		return Credentials{}, ErrMissingCredentials
	}
	return *c, nil
}
