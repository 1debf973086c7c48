package relay

import (
	"encoding/json"
	"strings"

	"golang.org/x/oauth2"
)

// metadata is the JSON part of the multipart create request.
type metadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

// ObjectName derives the destination file name for a task.
func (r *Relay) ObjectName(taskID string) string {
	return r.objectPrefix + taskID + r.mediaExtension
}

func (r *Relay) metadataFor(taskID string) metadata {
	meta := metadata{Name: r.ObjectName(taskID), MimeType: r.contentType}
	if r.folderID != "" {
		meta.Parents = []string{r.folderID}
	}
	return meta
}

// authorizedUser is the credential layout written by Google's client libraries.
type authorizedUser struct {
	Token string `json:"token"`
}

// tokenFromCredential decodes a stored oauth2.Token or an authorized-user
// document. Anything else is used verbatim as the access token.
func tokenFromCredential(blob []byte) *oauth2.Token {
	var token oauth2.Token
	if err := json.Unmarshal(blob, &token); err == nil && token.AccessToken != "" {
		return &token
	}
	var user authorizedUser
	if err := json.Unmarshal(blob, &user); err == nil && user.Token != "" {
		return &oauth2.Token{AccessToken: user.Token}
	}
	return &oauth2.Token{AccessToken: strings.TrimSpace(string(blob))}
}
