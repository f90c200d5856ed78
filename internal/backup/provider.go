// Package backup mirrors the whole local corpus into a folder hierarchy on
// an OAuth-authenticated file provider and restores it back.
//
// Layout on the provider:
//
//	<root folder>/
//	    sync-status.json
//	    users/
//	        <ownerId>/
//	            profile.json
//	            records.json
//	            settings.json
//
// Providers allow several children with the same name under one parent, so
// every folder is found-or-created (searched by exact name first) and every
// file is upserted by name. Duplicates created by racing writers are removed
// by the cleanup operations, which keep the earliest-created item.
package backup

import (
	"context"
	"time"
)

// FolderMimeType marks folders on the provider.
const FolderMimeType = "application/vnd.google-apps.folder"

// RootParent is the provider's id for the top of the user's drive.
const RootParent = "root"

// Kind filters List results.
type Kind int

const (
	KindAny Kind = iota
	KindFolder
	KindFile
)

// Item is a file or folder handle on the provider.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ParentID    string    `json:"parentId,omitempty"`
	MimeType    string    `json:"mimeType,omitempty"`
	Folder      bool      `json:"folder"`
	CreatedTime time.Time `json:"createdTime"`
}

// Provider is the set of file primitives the folder manager builds on.
type Provider interface {
	// List returns the children of parentID. An empty name matches all.
	List(ctx context.Context, parentID, name string, kind Kind) ([]Item, error)
	CreateFolder(ctx context.Context, parentID, name string) (Item, error)
	// CreateFile always creates a new file, even when the name is taken.
	CreateFile(ctx context.Context, parentID, name, mimeType string, data []byte) (Item, error)
	UpdateFile(ctx context.Context, fileID string, data []byte) error
	Download(ctx context.Context, fileID string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}
