// Package common defines shared constants and sentinel errors used across
// the client, server and core packages. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Packet and bulletin integrity errors.
	ErrDamagedPacket   = errors.New("damaged packet")
	ErrDamagedBulletin = errors.New("damaged bulletin")
	ErrDamagedArchive  = errors.New("damaged archive")

	// Key pair lifecycle errors.
	ErrNoKeyPair             = errors.New("no key pair")
	ErrInvalidKeyPairVersion = errors.New("invalid key pair version")
	ErrAuthorizationFailed   = errors.New("authorization failed")

	// Crypto errors.
	ErrEncryption         = errors.New("encryption failed")
	ErrDecryption         = errors.New("decryption failed")
	ErrInvalidPublicKey   = errors.New("invalid public key")
	ErrSignatureFinished  = errors.New("signature already produced")
	ErrInvalidServerInfo  = errors.New("invalid server info")
	ErrTokenExpired       = errors.New("token expired")
	ErrUnexpectedResponse = errors.New("unexpected response")

	// Folder errors.
	ErrFolderNotFound = errors.New("folder not found")
	ErrFolderExists   = errors.New("folder already exists")
	ErrReservedFolder = errors.New("reserved folder")

	// Resource errors.
	ErrBulletinTooLarge = errors.New("bulletin too large")
)
