package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionCookieName = "tastematch_session"
	sessionUserIDKey  = "user_id"
	sessionStateKey   = "oauth_state"
)

// for OAuth state tokens
var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

func newStateToken() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func getSession(r *http.Request) (*sessions.Session, error) {
	session, err := sessionStore.Get(r, sessionCookieName)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func newSession(r *http.Request) (*sessions.Session, error) {
	session, err := sessionStore.New(r, sessionCookieName)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func errorResponse(c echo.Context, code int, message string) error {
	c.Logger().Debugf("error: status=%d, message=%s", code, message)

	body := BasicResponse{
		Success: false,
		Message: message,
	}
	if err := c.JSON(code, body); err != nil {
		return fmt.Errorf("error returns JSON at errorResponse: %w", err)
	}
	return nil
}

// currentUser resolves the session to a live user row. (nil, false,
// nil) means no valid session.
func currentUser(c echo.Context) (*UserRow, bool, error) {
	sess, err := getSession(c.Request())
	if err != nil {
		return nil, false, fmt.Errorf("error getSession: %w", err)
	}
	rawID, ok := sess.Values[sessionUserIDKey]
	if !ok {
		return nil, false, nil
	}
	userID, ok := rawID.(int)
	if !ok {
		return nil, false, nil
	}
	user, err := store.GetUserByID(c.Request().Context(), userID)
	if err != nil {
		return nil, false, fmt.Errorf("error GetUserByID from session: %w", err)
	}
	if user == nil {
		return nil, false, nil
	}
	return user, true, nil
}

func generatePasswordHash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), 11)
	if err != nil {
		return "", fmt.Errorf("error bcrypt.GenerateFromPassword: %w", err)
	}
	return string(hashed), nil
}

func comparePasswordHash(password, passwordHash string) (bool, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return false, nil
		}
		return false, fmt.Errorf("error bcrypt.CompareHashAndPassword: %w", err)
	}
	return true, nil
}

func toUserResponse(user *UserRow) UserResponse {
	resp := UserResponse{
		ID:               user.ID,
		Name:             user.Name,
		Email:            user.Email,
		ListeningMinutes: user.ListeningMinutes,
	}
	if user.SpotifyID.Valid {
		resp.SpotifyID = user.SpotifyID.String
	}
	return resp
}

// POST /api/login

func apiLoginHandler(c echo.Context) error {
	var loginRequest LoginRequest
	if err := c.Bind(&loginRequest); err != nil {
		c.Logger().Errorf("error Bind request to LoginRequest: %s", err)
		return errorResponse(c, 500, "failed to login (server error)")
	}
	email := loginRequest.Email
	if email == "" {
		email = loginRequest.Username
	}
	if email == "" {
		return errorResponse(c, 400, "email is required")
	}
	if loginRequest.Password == "" {
		return errorResponse(c, 400, "password is required")
	}

	ctx := c.Request().Context()
	user, err := store.GetUserByEmail(ctx, email)
	if err != nil {
		c.Logger().Errorf("error GetUserByEmail: %s", err)
		return errorResponse(c, 500, "failed to login (server error)")
	}
	if user == nil || !user.PasswordHash.Valid {
		return errorResponse(c, 401, "invalid email or password")
	}

	matched, err := comparePasswordHash(loginRequest.Password, user.PasswordHash.String)
	if err != nil {
		c.Logger().Errorf("error comparePasswordHash: %s", err)
		return errorResponse(c, 500, "failed to login (server error)")
	}
	if !matched {
		return errorResponse(c, 401, "invalid email or password")
	}

	sess, err := newSession(c.Request())
	if err != nil {
		c.Logger().Errorf("error newSession: %s", err)
		return errorResponse(c, 500, "failed to login (server error)")
	}
	sess.Values[sessionUserIDKey] = user.ID
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		c.Logger().Errorf("error Save to session: %s", err)
		return errorResponse(c, 500, "failed to login (server error)")
	}

	return c.JSON(http.StatusOK, CurrentUserResponse{
		Success: true,
		User:    toUserResponse(user),
	})
}

// POST /api/logout

func apiLogoutHandler(c echo.Context) error {
	sess, err := getSession(c.Request())
	if err != nil {
		c.Logger().Errorf("error getSession: %s", err)
		return errorResponse(c, 500, "failed to logout (server error)")
	}
	sess.Options.MaxAge = -1
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		c.Logger().Errorf("error Save session: %s", err)
		return errorResponse(c, 500, "failed to logout (server error)")
	}
	return c.JSON(http.StatusOK, BasicResponse{Success: true, Message: "logged out"})
}

// GET /api/me

func apiCurrentUserHandler(c echo.Context) error {
	user, ok, err := currentUser(c)
	if err != nil {
		c.Logger().Errorf("error currentUser: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	if !ok {
		return errorResponse(c, 401, "not authenticated")
	}
	return c.JSON(http.StatusOK, CurrentUserResponse{
		Success: true,
		User:    toUserResponse(user),
	})
}

// GET /auth/spotify

func spotifyAuthHandler(c echo.Context) error {
	sess, err := newSession(c.Request())
	if err != nil {
		c.Logger().Errorf("error newSession: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	state := newStateToken()
	sess.Values[sessionStateKey] = state
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		c.Logger().Errorf("error Save to session: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	return c.Redirect(http.StatusFound, oauthConfig.AuthCodeURL(state))
}

// The frontend reads these query parameters; both shapes are part of
// its contract.

func authSuccessRedirectURL() string {
	return frontendURL + "/auth/callback?success=true"
}

func authErrorRedirectURL(reason string) string {
	return frontendURL + "/login?error=" + reason
}

// GET /auth/spotify/callback
//
// Completes the code exchange, upserts the user, and runs the taste
// sync. Ingestion failures are logged and swallowed: the login has
// already succeeded by the time ingestion runs. Failures before that
// point redirect back to the frontend login page.
func spotifyCallbackHandler(c echo.Context) error {
	sess, err := getSession(c.Request())
	if err != nil {
		c.Logger().Errorf("error getSession: %s", err)
		return c.Redirect(http.StatusFound, authErrorRedirectURL("auth_failed"))
	}
	wantState, _ := sess.Values[sessionStateKey].(string)
	if wantState == "" || c.QueryParam("state") != wantState {
		return c.Redirect(http.StatusFound, authErrorRedirectURL("auth_failed"))
	}
	delete(sess.Values, sessionStateKey)

	code := c.QueryParam("code")
	if code == "" {
		return c.Redirect(http.StatusFound, authErrorRedirectURL("auth_failed"))
	}

	ctx := c.Request().Context()
	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		c.Logger().Errorf("error Exchange auth code: %s", err)
		return c.Redirect(http.StatusFound, authErrorRedirectURL("auth_failed"))
	}

	profile, err := provider.GetProfile(ctx, token.AccessToken)
	if err != nil {
		c.Logger().Errorf("error GetProfile: %s", err)
		return c.Redirect(http.StatusFound, authErrorRedirectURL("auth_failed"))
	}

	name := profile.DisplayName
	if name == "" {
		name = profile.ID
	}
	email := profile.Email
	if email == "" {
		email = profile.ID + "@spotify.com"
	}

	user, err := store.GetUserBySpotifyID(ctx, profile.ID)
	if err != nil {
		c.Logger().Errorf("error GetUserBySpotifyID: %s", err)
		return c.Redirect(http.StatusFound, authErrorRedirectURL("login_failed"))
	}
	if user != nil {
		if err := store.UpdateSpotifyUser(ctx, user.ID, name, email, token.AccessToken, token.RefreshToken); err != nil {
			c.Logger().Errorf("error UpdateSpotifyUser: %s", err)
			return c.Redirect(http.StatusFound, authErrorRedirectURL("login_failed"))
		}
	} else {
		id, err := store.InsertSpotifyUser(ctx, name, email, profile.ID, token.AccessToken, token.RefreshToken)
		if err != nil {
			c.Logger().Errorf("error InsertSpotifyUser: %s", err)
			return c.Redirect(http.StatusFound, authErrorRedirectURL("login_failed"))
		}
		user, err = store.GetUserByID(ctx, id)
		if err != nil || user == nil {
			c.Logger().Errorf("error GetUserByID after insert: %s", err)
			return c.Redirect(http.StatusFound, authErrorRedirectURL("login_failed"))
		}
	}

	sess.Values[sessionUserIDKey] = user.ID
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		c.Logger().Errorf("error Save to session: %s", err)
		return c.Redirect(http.StatusFound, authErrorRedirectURL("login_failed"))
	}

	orchestrator.OnAuthenticated(ctx, user, token.AccessToken)

	return c.Redirect(http.StatusFound, authSuccessRedirectURL())
}

// POST /api/account/password

func apiSetPasswordHandler(c echo.Context) error {
	var req SetPasswordRequest
	if err := c.Bind(&req); err != nil {
		c.Logger().Errorf("error Bind request to SetPasswordRequest: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	if req.UserID <= 0 || req.Password == "" {
		return errorResponse(c, 400, "user id and password are required")
	}
	if len(req.Password) < 6 {
		return errorResponse(c, 400, "password must be at least 6 characters long")
	}

	ctx := c.Request().Context()
	user, err := store.GetUserByID(ctx, req.UserID)
	if err != nil {
		c.Logger().Errorf("error GetUserByID: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	if user == nil {
		return errorResponse(c, 404, "user not found")
	}

	hash, err := generatePasswordHash(req.Password)
	if err != nil {
		c.Logger().Errorf("error generatePasswordHash: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	if err := store.SetPasswordHash(ctx, user.ID, hash); err != nil {
		c.Logger().Errorf("error SetPasswordHash: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	return c.JSON(http.StatusOK, BasicResponse{Success: true, Message: "password set"})
}

// DELETE /api/account

func apiDeleteAccountHandler(c echo.Context) error {
	user, ok, err := currentUser(c)
	if err != nil {
		c.Logger().Errorf("error currentUser: %s", err)
		return errorResponse(c, 500, "internal server error")
	}
	if !ok {
		return errorResponse(c, 401, "not authenticated")
	}

	if err := store.DeleteUser(c.Request().Context(), user.ID); err != nil {
		c.Logger().Errorf("error DeleteUser: %s", err)
		return errorResponse(c, 500, "failed to delete account")
	}

	sess, err := getSession(c.Request())
	if err == nil {
		sess.Options.MaxAge = -1
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			c.Logger().Errorf("error Save session after delete: %s", err)
		}
	}
	return c.JSON(http.StatusOK, BasicResponse{Success: true, Message: "account deleted"})
}
