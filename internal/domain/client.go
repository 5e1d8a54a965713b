package domain

import "github.com/google/uuid"

type (
	ClientID string
	ConnID   string
)

// NewClientID returns a fresh browser client token.
func NewClientID() ClientID { return ClientID(uuid.NewString()) }

// NewConnID returns a fresh id for one physical WebSocket connection.
func NewConnID() ConnID { return ConnID(uuid.NewString()) }
