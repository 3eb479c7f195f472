package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Host publishes Services. Email is the principal identifier.
type Host struct {
	ID        primitive.ObjectID `json:"id" bson:"_id"`
	Email     string             `json:"email" bson:"email" validate:"required,email"`
	Password  string             `json:"password,omitempty" bson:"password" validate:"required,min=4,maxbytes=72"`
	HostName  string             `json:"host_name" bson:"host_name" validate:"required,max=100"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// Client creates Bookings.
type Client struct {
	ID         primitive.ObjectID `json:"id" bson:"_id"`
	Email      string             `json:"email" bson:"email" validate:"required,email"`
	Password   string             `json:"password,omitempty" bson:"password" validate:"required,min=4,maxbytes=72"`
	ClientName string             `json:"client_name" bson:"client_name" validate:"required,max=100"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
}

// Account is implemented by *Host and *Client.
type Account interface {
	AccountID() primitive.ObjectID
	PrincipalEmail() string
	PasswordDigest() string
	// Register prepares a validated signup payload for storage.
	Register(digest string, now time.Time)
	Redact()
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (h Host) PrincipalEmail() string   { return h.Email }
func (c Client) PrincipalEmail() string { return c.Email }

func (h *Host) AccountID() primitive.ObjectID   { return h.ID }
func (c *Client) AccountID() primitive.ObjectID { return c.ID }

func (h *Host) PasswordDigest() string   { return h.Password }
func (c *Client) PasswordDigest() string { return c.Password }

func (h *Host) Register(digest string, now time.Time) {
	h.ID = primitive.NewObjectID()
	h.Email = NormalizeEmail(h.Email)
	h.Password = digest
	h.CreatedAt = now.UTC()
}

func (c *Client) Register(digest string, now time.Time) {
	c.ID = primitive.NewObjectID()
	c.Email = NormalizeEmail(c.Email)
	c.Password = digest
	c.CreatedAt = now.UTC()
}

func (h *Host) Redact()   { h.Password = "" }
func (c *Client) Redact() { c.Password = "" }

// AccountUpdate is implemented by HostUpdate and ClientUpdate.
type AccountUpdate interface {
	Changes() (password Optional[string], nameField string, name Optional[string])
}

type HostUpdate struct {
	Password Optional[string] `json:"password" validate:"omitempty,min=4,maxbytes=72"`
	HostName Optional[string] `json:"host_name" validate:"omitempty,max=100"`
}

func (u HostUpdate) Changes() (Optional[string], string, Optional[string]) {
	return u.Password, "host_name", u.HostName
}

type ClientUpdate struct {
	Password   Optional[string] `json:"password" validate:"omitempty,min=4,maxbytes=72"`
	ClientName Optional[string] `json:"client_name" validate:"omitempty,max=100"`
}

func (u ClientUpdate) Changes() (Optional[string], string, Optional[string]) {
	return u.Password, "client_name", u.ClientName
}

// TokenResponse is returned by signin and refresh-token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
