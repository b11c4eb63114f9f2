// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
)

// Repository is a GitHub repository as returned by the repository
// metadata endpoint.
type Repository struct {
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`

	// Permissions reflects the authenticated identity's access level.
	// GitHub populates it only when the request is authenticated as a
	// user or installation with some access to the repository.
	Permissions map[string]bool `json:"permissions"`
}

// GetRepository returns metadata for owner/repo, including the
// authenticated identity's permission level. Returns an error
// satisfying IsNotFound when the repository does not exist or the
// authenticated identity cannot see it.
func (client *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var repository Repository
	if err := client.get(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), &repository); err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, repo, err)
	}
	return &repository, nil
}
