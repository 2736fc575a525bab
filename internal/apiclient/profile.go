package apiclient

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/anonto42/shelfstream/internal/models"
)

// Profile returns the viewer's profile
func (c *Client) Profile(ctx context.Context) (models.Profile, error) {
	var out models.Profile
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/profile", auth: private}, &out)
	return out, err
}

// UpdateProfile changes the viewer's profile fields
func (c *Client) UpdateProfile(ctx context.Context, fields map[string]any) (models.Profile, error) {
	var out models.Profile
	err := c.do(ctx, request{method: http.MethodPut, path: "/api/profile", body: fields, auth: private}, &out)
	return out, err
}

// DeleteProfile deletes the viewer's account
func (c *Client) DeleteProfile(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/profile", auth: private}, nil)
}

// SetLanguage changes the viewer's UI language
func (c *Client) SetLanguage(ctx context.Context, lang string) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/api/profile/language",
		body:   map[string]string{"language": lang},
		auth:   private,
	}, nil)
}

// ChangePassword changes the viewer's password
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/api/profile/password",
		body:   map[string]string{"currentPassword": current, "newPassword": next},
		auth:   private,
	}, nil)
}

// UploadAvatar sends an image as multipart form field "avatar"
func (c *Client) UploadAvatar(ctx context.Context, filename string, img io.Reader) (models.Profile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", filename)
	if err != nil {
		return models.Profile{}, errors.Wrap(err, "failed to create form file")
	}
	if _, err := io.Copy(part, img); err != nil {
		return models.Profile{}, errors.Wrap(err, "failed to read avatar")
	}
	if err := mw.Close(); err != nil {
		return models.Profile{}, errors.Wrap(err, "failed to finish form")
	}

	var out models.Profile
	err = c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/profile/avatar",
		raw:    &buf,
		ctype:  mw.FormDataContentType(),
		auth:   private,
	}, &out)
	return out, err
}

// AdminUsers lists users, page is 1-based and search may be empty
func (c *Client) AdminUsers(ctx context.Context, page int, search string) (models.AdminUserPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if search != "" {
		q.Set("search", search)
	}
	var out models.AdminUserPage
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/admin/users", query: q, auth: private}, &out)
	return out, err
}

// AdminUpdateUser edits another user's fields
func (c *Client) AdminUpdateUser(ctx context.Context, id string, fields map[string]any) (models.AdminUser, error) {
	var out models.AdminUser
	err := c.do(ctx, request{method: http.MethodPut, path: "/api/admin/users/" + escape(id), body: fields, auth: private}, &out)
	return out, err
}

// AdminSetPassword resets another user's password
func (c *Client) AdminSetPassword(ctx context.Context, id, password string) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/api/admin/users/" + escape(id) + "/password",
		body:   map[string]string{"password": password},
		auth:   private,
	}, nil)
}

// AdminSetAccessLevel changes another user's access level
func (c *Client) AdminSetAccessLevel(ctx context.Context, id string, level models.AccessLevel) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/api/admin/users/" + escape(id) + "/access-level",
		body:   map[string]models.AccessLevel{"accessLevel": level},
		auth:   private,
	}, nil)
}

// AdminImpersonate returns a token acting as user id
func (c *Client) AdminImpersonate(ctx context.Context, id string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/admin/users/" + escape(id) + "/impersonate", auth: private}, &out)
	return out.Token, err
}
