package launcher

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IdentityOptions tunes token and join lifetimes.
type IdentityOptions struct {
	TokenTTL time.Duration
	JoinTTL  time.Duration
}

func (o IdentityOptions) withDefaults() IdentityOptions {
	if o.TokenTTL <= 0 {
		o.TokenTTL = 24 * time.Hour
	}
	if o.JoinTTL <= 0 {
		o.JoinTTL = 30 * time.Second
	}
	return o
}

// Identity issues and checks tokens, owns the hardware ban set, authorizes
// server joins and records sessions.
type Identity struct {
	users    UserStore
	bans     BanStore
	verifier CredentialVerifier
	tokens   TokenIssuer
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	opts     IdentityOptions

	banMu  sync.RWMutex
	banned map[HardwareBan]struct{}
}

// NewIdentity creates an Identity with an empty ban set. Call LoadBans to
// restore the persisted set.
func NewIdentity(users UserStore, bans BanStore, verifier CredentialVerifier, tokens TokenIssuer, logger Logger, clock Clock, idgen IDGenerator, opts IdentityOptions) *Identity {
	return &Identity{
		users:    users,
		bans:     bans,
		verifier: verifier,
		tokens:   tokens,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		opts:     opts.withDefaults(),
		banned:   make(map[HardwareBan]struct{}),
	}
}

// LoadBans replaces the in-memory ban set with the persisted one.
func (i *Identity) LoadBans(ctx context.Context) error {
	bans, err := i.bans.ListHardwareBans(ctx)
	if err != nil {
		return fmt.Errorf("loading hardware bans: %w", err)
	}
	set := make(map[HardwareBan]struct{}, len(bans))
	for _, b := range bans {
		set[b] = struct{}{}
	}
	i.banMu.Lock()
	i.banned = set
	i.banMu.Unlock()
	i.logger.Debug("hardware bans loaded", "count", len(set))
	return nil
}

// IsBanned reports whether any component of fp is in the ban set.
func (i *Identity) IsBanned(fp HardwareFingerprint) bool {
	i.banMu.RLock()
	defer i.banMu.RUnlock()
	for _, c := range fp.Components() {
		if _, ok := i.banned[c]; ok {
			return true
		}
	}
	return false
}

// BlockHardware adds every non-empty component of fp to the ban set.
// It takes effect for subsequent Authenticate and ValidateJoin calls; tokens
// already issued stay valid until they expire or are revoked.
func (i *Identity) BlockHardware(ctx context.Context, fp HardwareFingerprint) error {
	comps := fp.Components()
	if len(comps) == 0 {
		return nil
	}
	i.banMu.Lock()
	defer i.banMu.Unlock()
	if err := i.bans.AddHardwareBans(ctx, comps, i.clock.Now()); err != nil {
		return fmt.Errorf("persisting hardware bans: %w", err)
	}
	for _, c := range comps {
		i.banned[c] = struct{}{}
	}
	i.logger.Info("hardware blocked", "components", len(comps))
	return nil
}

// UnblockHardware removes every non-empty component of fp from the ban set.
func (i *Identity) UnblockHardware(ctx context.Context, fp HardwareFingerprint) error {
	comps := fp.Components()
	if len(comps) == 0 {
		return nil
	}
	i.banMu.Lock()
	defer i.banMu.Unlock()
	if err := i.bans.RemoveHardwareBans(ctx, comps); err != nil {
		return fmt.Errorf("removing hardware bans: %w", err)
	}
	for _, c := range comps {
		delete(i.banned, c)
	}
	i.logger.Info("hardware unblocked", "components", len(comps))
	return nil
}

// AuthRequest is one login attempt.
type AuthRequest struct {
	Login         string
	Secret        string
	DeviceID      string
	SourceAddress string
	Protocol      string
	Fingerprint   HardwareFingerprint
	SlimSkin      bool
}

// AuthResult carries the authenticated user and the plaintext refresh token,
// which is returned exactly once and never stored.
type AuthResult struct {
	User         *User
	RefreshToken string
}

// Authenticate checks the ban set, then the credentials, and on success
// issues a fresh access token and refresh token.
//
// A banned fingerprint fails with ErrHardwareBanned before the credentials
// are looked at. Rejected credentials fail with ErrAuthenticationFailed and
// nothing else, whether the login is unknown or the secret is wrong.
func (i *Identity) Authenticate(ctx context.Context, req AuthRequest) (*AuthResult, error) {
	if i.IsBanned(req.Fingerprint) {
		authAttemptsTotal.WithLabelValues("banned").Inc()
		i.logger.Warn("banned hardware attempted login", "source", req.SourceAddress)
		return nil, ErrHardwareBanned
	}

	id, err := i.verifier.Verify(ctx, req.Login, req.Secret)
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			authAttemptsTotal.WithLabelValues("failed").Inc()
			i.logger.Info("authentication rejected", "source", req.SourceAddress)
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("verifying credentials: %w", err)
	}

	userUUID := id.UUID
	if userUUID == "" {
		userUUID = uuid.NewMD5(uuid.NameSpaceOID, []byte("OfflinePlayer:"+id.Name)).String()
	}

	user, err := i.users.FindUserByUUID(ctx, userUUID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	now := i.clock.Now()
	if user == nil {
		user = &User{UUID: userUUID, CreatedAt: now}
	}
	user.Name = id.Name
	user.DeviceID = req.DeviceID
	user.SourceAddress = req.SourceAddress
	user.Protocol = req.Protocol
	user.SlimSkin = req.SlimSkin
	user.Fingerprint = req.Fingerprint

	refresh, err := i.issueTokens(user, now)
	if err != nil {
		return nil, err
	}
	if err := i.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}

	authAttemptsTotal.WithLabelValues("ok").Inc()
	i.logger.Info("user authenticated", "user", user.Name, "uuid", user.UUID, "protocol", req.Protocol)
	return &AuthResult{User: user, RefreshToken: refresh}, nil
}

// issueTokens sets a new access token, expiry and refresh token hash on user
// and returns the plaintext refresh token.
func (i *Identity) issueTokens(user *User, now time.Time) (string, error) {
	expires := now.Add(i.opts.TokenTTL)
	access, err := i.tokens.IssueAccessToken(user.UUID, now, expires)
	if err != nil {
		return "", fmt.Errorf("issuing access token: %w", err)
	}
	refresh, hash, err := i.tokens.NewRefreshToken()
	if err != nil {
		return "", fmt.Errorf("issuing refresh token: %w", err)
	}
	user.AccessToken = access
	user.RefreshTokenHash = hash
	user.ExpiredDate = expires
	user.UpdatedAt = now
	return refresh, nil
}

// Refresh rotates both tokens when the presented refresh token matches.
func (i *Identity) Refresh(ctx context.Context, userUUID, refreshToken string) (*AuthResult, error) {
	user, err := i.users.FindUserByUUID(ctx, userUUID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil || len(user.RefreshTokenHash) == 0 {
		return nil, ErrTokenInvalid
	}
	presented := i.tokens.HashRefreshToken(refreshToken)
	if subtle.ConstantTimeCompare(presented, user.RefreshTokenHash) != 1 {
		return nil, ErrTokenInvalid
	}
	if i.IsBanned(user.Fingerprint) {
		return nil, ErrHardwareBanned
	}

	refresh, err := i.issueTokens(user, i.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := i.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}
	i.logger.Debug("tokens refreshed", "uuid", user.UUID)
	return &AuthResult{User: user, RefreshToken: refresh}, nil
}

// Revoke invalidates the user's tokens and closes their open sessions.
func (i *Identity) Revoke(ctx context.Context, userUUID string) error {
	user, err := i.users.FindUserByUUID(ctx, userUUID)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %s: %w", userUUID, ErrNotFound)
	}
	now := i.clock.Now()
	user.AccessToken = ""
	user.RefreshTokenHash = nil
	user.ExpiredDate = now
	user.ServerUUID = ""
	user.UpdatedAt = now
	if err := i.users.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	if _, err := i.users.CloseOpenSessions(ctx, userUUID, now); err != nil {
		return fmt.Errorf("closing sessions: %w", err)
	}
	i.logger.Info("tokens revoked", "uuid", userUUID)
	return nil
}

// ValidateJoin authorizes a game-server join. It returns true only if the
// access token matches the user's current token, has not expired, and the
// user's hardware is not banned; the join is then recorded for HasJoined.
func (i *Identity) ValidateJoin(ctx context.Context, accessToken, userUUID, serverID string) (bool, error) {
	user, err := i.users.FindUserByUUID(ctx, userUUID)
	if err != nil {
		return false, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return false, nil
	}
	now := i.clock.Now()
	if !user.TokenValid(now) ||
		subtle.ConstantTimeCompare([]byte(accessToken), []byte(user.AccessToken)) != 1 {
		return false, nil
	}
	if i.IsBanned(user.Fingerprint) {
		return false, nil
	}

	user.ServerUUID = serverID
	user.ServerExpiredDate = now.Add(i.opts.JoinTTL)
	user.UpdatedAt = now
	if err := i.users.SaveUser(ctx, user); err != nil {
		return false, fmt.Errorf("recording join: %w", err)
	}
	i.logger.Debug("join validated", "uuid", userUUID, "server", serverID)
	return true, nil
}

// HasJoined returns the user if they validated a join to serverID recently.
func (i *Identity) HasJoined(ctx context.Context, userName, serverID string) (*User, error) {
	user, err := i.users.FindUserByName(ctx, userName)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	now := i.clock.Now()
	if user == nil || user.ServerUUID == "" || user.ServerUUID != serverID || !now.Before(user.ServerExpiredDate) {
		return nil, fmt.Errorf("join of %q to %q: %w", userName, serverID, ErrNotFound)
	}
	user.IsBanned = i.IsBanned(user.Fingerprint)
	if user.IsBanned {
		return nil, ErrHardwareBanned
	}
	return user, nil
}

// StartSession appends an open session for the user.
func (i *Identity) StartSession(ctx context.Context, userUUID string) (*Session, error) {
	user, err := i.users.FindUserByUUID(ctx, userUUID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userUUID, ErrNotFound)
	}
	s := &Session{ID: i.idgen.New(), UserUUID: userUUID, Start: i.clock.Now()}
	if err := i.users.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	i.logger.Debug("session started", "uuid", userUUID, "session", s.ID)
	return s, nil
}

// EndSession closes the user's open sessions. Ending with none open is a no-op.
func (i *Identity) EndSession(ctx context.Context, userUUID string) error {
	n, err := i.users.CloseOpenSessions(ctx, userUUID, i.clock.Now())
	if err != nil {
		return fmt.Errorf("closing sessions: %w", err)
	}
	if n > 0 {
		i.logger.Debug("session ended", "uuid", userUUID)
	}
	return nil
}

// ExpireSessions closes the open sessions of every user whose access token
// has expired. Returns the number of sessions closed.
func (i *Identity) ExpireSessions(ctx context.Context) (int64, error) {
	users, err := i.users.ListUsersWithOpenSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing open sessions: %w", err)
	}
	now := i.clock.Now()
	var closed int64
	for _, u := range users {
		if u.TokenValid(now) {
			continue
		}
		n, err := i.users.CloseOpenSessions(ctx, u.UUID, now)
		if err != nil {
			return closed, fmt.Errorf("closing sessions of %s: %w", u.UUID, err)
		}
		closed += n
	}
	if closed > 0 {
		i.logger.Info("expired sessions closed", "count", closed)
	}
	return closed, nil
}

// FindUser returns the user with their session history and computed ban
// status, or an error wrapping ErrNotFound.
func (i *Identity) FindUser(ctx context.Context, userUUID string) (*User, error) {
	user, err := i.users.FindUserByUUID(ctx, userUUID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userUUID, ErrNotFound)
	}
	sessions, err := i.users.ListSessions(ctx, userUUID)
	if err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}
	user.Sessions = sessions
	user.IsBanned = i.IsBanned(user.Fingerprint)
	return user, nil
}
