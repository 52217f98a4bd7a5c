package rpc

import (
	"errors"
	"net/url"
	"strings"

	"github.com/codu-code/codu/internal/auth"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/repository"
	"github.com/codu-code/codu/internal/storage"
	"github.com/codu-code/codu/internal/validation"
)

func (r *Router) registerProfiles() {
	r.query("profile.get", r.profileGet)
	r.query("profile.me", r.profileMe)
	r.mutation("profile.edit", r.profileEdit)
	r.mutation("profile.getUploadUrl", r.uploadURL(storage.KindAvatar))
	r.mutation("profile.updateImage", r.profileUpdateImage)
	r.mutation("profile.setPublicKey", r.profileSetPublicKey)
}

type usernameInput struct {
	Username string `json:"username"`
}

type profileResult struct {
	*model.User
	Posts []model.PostSummary `json:"posts"`
}

func (r *Router) profileGet(c *Call) (any, error) {
	var in usernameInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if in.Username == "" {
		return nil, errBadInput
	}

	u, err := r.Repos.Users.GetByUsername(c.ctx, strings.ToLower(in.Username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("Profile")
	}
	if err != nil {
		return nil, err
	}

	banned, err := r.Repos.Moderation.IsBanned(c.ctx, u.ID)
	if err != nil {
		return nil, err
	}
	posts := []model.PostSummary{}
	if !banned {
		posts, err = r.Repos.Posts.ByAuthor(c.ctx, u.ID)
		if err != nil {
			return nil, err
		}
	}
	return profileResult{User: u, Posts: posts}, nil
}

type meResult struct {
	*model.User
	Admin        bool `json:"isAdmin"`
	Banned       bool `json:"isBanned"`
	HasPublicKey bool `json:"hasPublicKey"`
}

func (r *Router) profileMe(c *Call) (any, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}
	banned, err := r.Repos.Moderation.IsBanned(c.ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return meResult{User: u, Admin: u.IsAdmin(), Banned: banned, HasPublicKey: u.PublicKey != ""}, nil
}

func (r *Router) profileEdit(c *Call) (any, error) {
	u, err := r.activeUser(c)
	if err != nil {
		return nil, err
	}

	var in validation.ProfileInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	if err := validation.Profile(&in); err != nil {
		return nil, err
	}

	if err := r.Repos.Users.UpdateProfile(c.ctx, u.ID, in.Name, in.Bio); err != nil {
		return nil, err
	}
	u.Name, u.Bio = in.Name, in.Bio
	return u, nil
}

type imageInput struct {
	URL string `json:"url"`
}

func (r *Router) profileUpdateImage(c *Call) (any, error) {
	u, err := r.activeUser(c)
	if err != nil {
		return nil, err
	}

	var in imageInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	parsed, err := url.Parse(in.URL)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		var errs validation.Errors
		errs.Add("url", "Image must be a valid http or https address.")
		return nil, &errs
	}

	if err := r.Repos.Users.SetImage(c.ctx, u.ID, in.URL); err != nil {
		return nil, err
	}
	u.Image = in.URL
	return u, nil
}

type publicKeyInput struct {
	PublicKey string `json:"publicKey"`
}

// profileSetPublicKey registers the ed25519 key used for challenge sign in.
// An empty key removes it.
func (r *Router) profileSetPublicKey(c *Call) (any, error) {
	u, err := r.user(c)
	if err != nil {
		return nil, err
	}

	var in publicKeyInput
	if err := c.Decode(&in); err != nil {
		return nil, err
	}
	in.PublicKey = strings.TrimSpace(in.PublicKey)
	if in.PublicKey != "" {
		if _, err := auth.ParsePublicKeyPEM(in.PublicKey); err != nil {
			var errs validation.Errors
			errs.Add("publicKey", "Public key must be a PEM encoded Ed25519 key.")
			return nil, &errs
		}
	}

	if err := r.Repos.Users.SetPublicKey(c.ctx, u.ID, in.PublicKey); err != nil {
		return nil, err
	}
	rpcLogger.Info().Str("user_id", string(u.ID)).Bool("set", in.PublicKey != "").Msg("Public key updated")
	return meResult{User: u, Admin: u.IsAdmin(), HasPublicKey: in.PublicKey != ""}, nil
}
