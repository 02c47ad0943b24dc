package flows

import "context"

// Identity is the part of a user record that access tokens carry.
type Identity struct {
	ID    int64
	Name  string
	Email string
}

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each operation to the matching flow.
type Deps struct {
	Rotation     RotationDeps
	Login        LoginDeps
	Redeem       RedeemDeps
	ResetRequest ResetRequestDeps
	ResetConfirm ResetConfirmDeps
}

// LookupIdentityFunc loads the identity of a user by id.
type LookupIdentityFunc func(ctx context.Context, userID int64) (Identity, error)

// IssueAccessFunc signs an access token for an identity.
type IssueAccessFunc func(Identity) (string, error)
