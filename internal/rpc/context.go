package rpc

import (
	"context"

	"github.com/mavleo96/ledger-partition/internal/netops"
)

// Role is the privilege level of an RPC caller
type Role int

const (
	RoleGuest Role = iota
	RoleUser
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "ADMIN"
	case RoleUser:
		return "USER"
	default:
		return "GUEST"
	}
}

// IsUnlimited reports whether callers of role r bypass fee escalation
func (r Role) IsUnlimited() bool {
	return r == RoleAdmin
}

// Context carries one RPC request
type Context struct {
	Ctx    context.Context
	Params map[string]any
	Role   Role
}

// Has reports whether the request carries field
func (c *Context) Has(field string) bool {
	_, ok := c.Params[field]
	return ok
}

// FailHard reads the optional fail_hard flag
func (c *Context) FailHard() netops.FailHard {
	v, ok := c.Params["fail_hard"].(bool)
	return netops.DoFailHard(ok && v)
}

func (c *Context) context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}
