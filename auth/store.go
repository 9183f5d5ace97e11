// Package auth manages the hub's persistent identity state: users, permission
// groups, credentials, and refresh tokens. The in-memory graph is loaded
// lazily on first access, is authoritative for the rest of the process
// lifetime, and is written back through a debounced persistence layer so
// high-frequency mutations (token usage stamps on every authenticated
// request) coalesce into a single disk write.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"findler.com/hubauth/permissions"
	"findler.com/hubauth/store"
)

// DefaultSaveDelay is the debounce window for persistence. Mutations inside
// one window land in a single write.
const DefaultSaveDelay = time.Second

// Store is the identity store façade. All access to the identity graph goes
// through it; callers must never mutate returned objects directly, or the
// save scheduling and permission-cache invalidation obligations are skipped.
type Store struct {
	store     *store.Store
	log       *logrus.Entry
	saveDelay time.Duration

	// mu guards the graph and the loaded flag. Every operation holds it for
	// its full read-modify-write span; the lazy load runs under it too, so
	// concurrent first touches perform exactly one backend load.
	mu     sync.Mutex
	loaded bool
	users  map[string]*User
	groups map[string]*Group

	// tokenOwners maps refresh token id to owning user id, so token lookup
	// and removal do not scan every user.
	tokenOwners map[string]string

	// policies caches the resolved permission checker per user id. Entries
	// are dropped in the one code path that changes group membership.
	policies *gocache.Cache
}

// Option configures a Store.
type Option func(*Store)

// WithSaveDelay overrides the persistence debounce window.
func WithSaveDelay(d time.Duration) Option {
	return func(s *Store) { s.saveDelay = d }
}

// WithLogger overrides the store's logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) { s.log = log }
}

// NewStore creates an identity store over the given persistence adapter.
func NewStore(docs *store.Store, opts ...Option) *Store {
	s := &Store{
		store:       docs,
		log:         logrus.NewEntry(logrus.StandardLogger()).WithField("component", "auth"),
		saveDelay:   DefaultSaveDelay,
		tokenOwners: map[string]string{},
		policies:    gocache.New(gocache.NoExpiration, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Groups returns all permission groups.
func (s *Store) Groups(ctx context.Context) ([]*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	groups := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	return groups, nil
}

// GroupByID returns a group, or nil if it does not exist.
func (s *Store) GroupByID(ctx context.Context, id string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	return s.groups[id], nil
}

// Users returns all users.
func (s *Store) Users(ctx context.Context) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

// UserByID returns a user, or nil if it does not exist.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	return s.users[id], nil
}

// CreateUser adds a new user. Unknown group ids abort the operation with
// ErrUnknownGroup before anything is mutated. When credentials are supplied
// they are linked as part of creation, and that linking schedules the save.
func (s *Store) CreateUser(ctx context.Context, p NewUser) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	groups, err := s.resolveGroupsLocked(p.GroupIDs)
	if err != nil {
		return nil, err
	}

	active := true
	if p.Active != nil {
		active = *p.Active
	}
	user := &User{
		ID:              uuid.NewString(),
		Name:            p.Name,
		IsOwner:         p.IsOwner,
		IsActive:        active,
		SystemGenerated: p.SystemGenerated,
		Groups:          groups,
		RefreshTokens:   map[string]*RefreshToken{},
	}
	s.users[user.ID] = user

	if p.Credentials != nil {
		s.linkUserLocked(user, p.Credentials)
	} else {
		s.scheduleSaveLocked()
	}
	return user, nil
}

// LinkUser attaches credentials to a user. Ownership of the credentials
// transfers to the user; IsNew is cleared.
func (s *Store) LinkUser(ctx context.Context, user *User, credentials *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	s.linkUserLocked(user, credentials)
	return nil
}

func (s *Store) linkUserLocked(user *User, credentials *Credentials) {
	user.Credentials = append(user.Credentials, credentials)
	s.scheduleSaveLocked()
	credentials.IsNew = false
}

// RemoveUser deletes a user and, implicitly, its credentials and refresh
// tokens. Removing an unknown user is a no-op.
func (s *Store) RemoveUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if _, ok := s.users[user.ID]; !ok {
		return nil
	}
	delete(s.users, user.ID)
	for tokenID := range user.RefreshTokens {
		delete(s.tokenOwners, tokenID)
	}
	s.policies.Delete(user.ID)
	s.scheduleSaveLocked()
	return nil
}

// UpdateUser applies a sparse update. A group change re-resolves the ids
// (failing fast on an unknown id, like CreateUser) and invalidates the user's
// cached permissions in the same operation.
func (s *Store) UpdateUser(ctx context.Context, user *User, update UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}

	if update.GroupIDs != nil {
		groups, err := s.resolveGroupsLocked(update.GroupIDs)
		if err != nil {
			return err
		}
		user.Groups = groups
		s.policies.Delete(user.ID)
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Active != nil {
		user.IsActive = *update.Active
	}
	s.scheduleSaveLocked()
	return nil
}

// ActivateUser marks a user active.
func (s *Store) ActivateUser(ctx context.Context, user *User) error {
	return s.setActive(ctx, user, true)
}

// DeactivateUser marks a user inactive. The store only records the flag;
// excluding inactive users from authentication is the caller's job.
func (s *Store) DeactivateUser(ctx context.Context, user *User) error {
	return s.setActive(ctx, user, false)
}

func (s *Store) setActive(ctx context.Context, user *User, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	user.IsActive = active
	s.scheduleSaveLocked()
	return nil
}

// RemoveCredentials detaches credentials from whichever user holds them.
// Matching is by object identity: two credentials with identical fields are
// still distinct. A save is scheduled whether or not a match was found.
func (s *Store) RemoveCredentials(ctx context.Context, credentials *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}

found:
	for _, user := range s.users {
		for i, c := range user.Credentials {
			if c == credentials {
				user.Credentials = append(user.Credentials[:i], user.Credentials[i+1:]...)
				break found
			}
		}
	}
	s.scheduleSaveLocked()
	return nil
}

// CreateRefreshToken mints a new refresh token for a user, with a fresh
// random secret and signing key.
func (s *Store) CreateRefreshToken(ctx context.Context, user *User, req RefreshTokenRequest) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	tokenType := req.TokenType
	if tokenType == "" {
		tokenType = TokenTypeNormal
	}
	expiration := req.AccessTokenExpiration
	if expiration == 0 {
		expiration = AccessTokenExpiration
	}

	token := &RefreshToken{
		ID:                    uuid.NewString(),
		User:                  user,
		ClientID:              req.ClientID,
		ClientName:            req.ClientName,
		ClientIcon:            req.ClientIcon,
		TokenType:             tokenType,
		Token:                 generateSecret(),
		JWTKey:                generateSecret(),
		CreatedAt:             time.Now().UTC(),
		AccessTokenExpiration: expiration,
	}
	user.RefreshTokens[token.ID] = token
	s.tokenOwners[token.ID] = user.ID
	s.scheduleSaveLocked()
	return token, nil
}

// RemoveRefreshToken revokes a refresh token. Exactly one save is scheduled
// when the token was present.
func (s *Store) RemoveRefreshToken(ctx context.Context, token *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	userID, ok := s.tokenOwners[token.ID]
	if !ok {
		return nil
	}
	if user, ok := s.users[userID]; ok {
		delete(user.RefreshTokens, token.ID)
	}
	delete(s.tokenOwners, token.ID)
	s.scheduleSaveLocked()
	return nil
}

// RefreshTokenByID returns a refresh token by id, or nil if it does not
// exist.
func (s *Store) RefreshTokenByID(ctx context.Context, id string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	return s.refreshTokenByIDLocked(id), nil
}

func (s *Store) refreshTokenByIDLocked(id string) *RefreshToken {
	userID, ok := s.tokenOwners[id]
	if !ok {
		return nil
	}
	user, ok := s.users[userID]
	if !ok {
		return nil
	}
	return user.RefreshTokens[id]
}

// RefreshTokenByToken resolves a presented token secret. Every candidate
// comparison is constant-time; the scan stops once a match is confirmed.
func (s *Store) RefreshTokenByToken(ctx context.Context, secret string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	for _, user := range s.users {
		for _, token := range user.RefreshTokens {
			if secretsEqual(secret, token.Token) {
				return token, nil
			}
		}
	}
	return nil, nil
}

// LogRefreshTokenUsage stamps a token with the time and origin of its latest
// use. This runs on effectively every authenticated request, so it only
// touches memory and lets the debounced save absorb the write.
func (s *Store) LogRefreshTokenUsage(ctx context.Context, token *RefreshToken, remoteIP string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	now := time.Now().UTC()
	token.LastUsedAt = &now
	token.LastUsedIP = remoteIP
	s.scheduleSaveLocked()
	return nil
}

// UserPermissions returns the permission checker for a user, derived from the
// user's groups and cached until the membership changes. Owners bypass
// policy evaluation entirely.
//
// The whole lookup-compute-store sequence runs under mu: a cache miss that
// computed outside the lock could race a concurrent group change and re-cache
// a checker for membership that no longer exists.
func (s *Store) UserPermissions(user *User) permissions.Checker {
	if user.IsOwner {
		return permissions.OwnerChecker{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.policies.Get(user.ID); ok {
		return cached.(permissions.Checker)
	}

	policies := make([]permissions.Policy, 0, len(user.Groups))
	for _, group := range user.Groups {
		policies = append(policies, group.Policy)
	}
	checker := permissions.NewChecker(permissions.Merge(policies...))
	s.policies.Set(user.ID, checker, gocache.NoExpiration)
	return checker
}

// Flush forces any pending debounced save to disk now. Call on shutdown.
func (s *Store) Flush(ctx context.Context) {
	s.store.Flush(ctx)
}

// ensureLoadedLocked performs the one-way Unloaded -> Loaded transition. The
// caller holds mu, so a second caller waiting on the mutex re-checks the flag
// after the first finishes and never loads twice.
func (s *Store) ensureLoadedLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	var data storeData
	found, err := s.store.Load(ctx, &data)
	if err != nil {
		return err
	}
	var doc *storeData
	if found {
		doc = &data
	}
	s.groups, s.users = migrateData(doc, s.log)

	s.tokenOwners = map[string]string{}
	for _, user := range s.users {
		for tokenID := range user.RefreshTokens {
			s.tokenOwners[tokenID] = user.ID
		}
	}

	s.loaded = true
	return nil
}

// resolveGroupsLocked maps group ids to live groups, rejecting unknown ids
// before any state changes.
func (s *Store) resolveGroupsLocked(groupIDs []string) ([]*Group, error) {
	groups := make([]*Group, 0, len(groupIDs))
	for _, id := range groupIDs {
		group, ok := s.groups[id]
		if !ok {
			return nil, ErrUnknownGroup
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// scheduleSaveLocked queues a debounced write. The snapshot is taken when the
// debounce window fires, so every mutation up to that point is captured.
func (s *Store) scheduleSaveLocked() {
	s.store.DelaySave(func() any {
		s.mu.Lock()
		defer s.mu.Unlock()
		return snapshotData(s.groups, s.users)
	}, s.saveDelay)
}
