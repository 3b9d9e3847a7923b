package models

import "github.com/golang-jwt/jwt/v5"

// Roles carried in access tokens. Users and professionals own wallets;
// admins operate the ledger but hold no wallet of their own.
const (
	RoleUser         = "user"
	RoleProfessional = "professional"
	RoleAdmin        = "admin"
)

// Application permissions
const (
	PermissionWalletRead  = "wallet:read"
	PermissionWalletWrite = "wallet:write"
	PermissionHoldWrite   = "hold:write"
	PermissionSettleWrite = "settlement:write"
	PermissionWithdraw    = "withdrawal:write"
	PermissionReconcile   = "ledger:reconcile"
)

type UserClaims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// HasPermission checks if the claims include a specific permission
func (c *UserClaims) HasPermission(permission string) bool {
	if c.Role == RoleAdmin {
		return true
	}
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	for _, p := range GetDefaultPermissions(c.Role) {
		if p == permission {
			return true
		}
	}
	return false
}

// Owner resolves the wallet owner named by the token. Admin tokens have none.
func (c *UserClaims) Owner() (OwnerRef, error) {
	switch c.Role {
	case RoleUser:
		return ParseOwner(OwnerTypeUser, c.UserID)
	case RoleProfessional:
		return ParseOwner(OwnerTypeProfessional, c.UserID)
	default:
		return OwnerRef{}, ErrInvalidOwner
	}
}

// GetDefaultPermissions returns default permissions based on role
func GetDefaultPermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{
			PermissionWalletRead,
			PermissionWalletWrite,
			PermissionHoldWrite,
			PermissionSettleWrite,
			PermissionWithdraw,
			PermissionReconcile,
		}
	case RoleProfessional:
		return []string{
			PermissionWalletRead,
			PermissionWalletWrite,
			PermissionHoldWrite,
			PermissionSettleWrite,
			PermissionWithdraw,
		}
	case RoleUser:
		return []string{
			PermissionWalletRead,
			PermissionWalletWrite,
			PermissionHoldWrite,
			PermissionSettleWrite,
		}
	default:
		return []string{}
	}
}
