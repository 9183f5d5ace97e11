package auth

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"findler.com/hubauth/permissions"
)

// storeData is the persisted document shape. It is versioned softly: older
// documents (no groups at all, or a single group without a policy) are
// upgraded in place during load by migrateData.
type storeData struct {
	Users         []userData       `json:"users"`
	Groups        []groupData      `json:"groups"`
	Credentials   []credentialData `json:"credentials"`
	RefreshTokens []tokenData      `json:"refresh_tokens"`
}

type userData struct {
	ID              string   `json:"id"`
	GroupIDs        []string `json:"group_ids"`
	IsOwner         bool     `json:"is_owner"`
	IsActive        bool     `json:"is_active"`
	Name            string   `json:"name"`
	SystemGenerated bool     `json:"system_generated"`
}

type groupData struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Policy permissions.Policy `json:"policy,omitempty"`
}

type credentialData struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	AuthProviderType string          `json:"auth_provider_type"`
	AuthProviderID   *string         `json:"auth_provider_id"`
	Data             json.RawMessage `json:"data"`
}

type tokenData struct {
	ID                    string  `json:"id"`
	UserID                string  `json:"user_id"`
	ClientID              *string `json:"client_id"`
	ClientName            string  `json:"client_name,omitempty"`
	ClientIcon            string  `json:"client_icon,omitempty"`
	TokenType             string  `json:"token_type,omitempty"`
	CreatedAt             string  `json:"created_at"`
	AccessTokenExpiration float64 `json:"access_token_expiration"`
	Token                 string  `json:"token"`
	JWTKey                string  `json:"jwt_key" validate:"required"`
	LastUsedAt            *string `json:"last_used_at"`
	LastUsedIP            string  `json:"last_used_ip,omitempty"`
}

// recordValidator checks individual persisted records; a record that fails is
// skipped, never the whole document. Only jwt_key is validated here: refresh
// tokens written before the field existed cannot be migrated safely and are
// dropped. Records with an unknown user or a bad created_at are handled by
// the per-field checks below instead.
var recordValidator = validator.New()

// defaultModel is the fresh-install state: the three system groups, no users.
func defaultModel() (map[string]*Group, map[string]*User) {
	groups := map[string]*Group{
		GroupIDAdmin:    systemGroup(GroupIDAdmin),
		GroupIDUser:     systemGroup(GroupIDUser),
		GroupIDReadOnly: systemGroup(GroupIDReadOnly),
	}
	return groups, map[string]*User{}
}

// migrateData turns whatever document version was found on disk into the
// canonical in-memory graph.
func migrateData(data *storeData, log *logrus.Entry) (map[string]*Group, map[string]*User) {
	if data == nil {
		return defaultModel()
	}

	groups := map[string]*Group{}

	// A single group with no policy is a valid historical on-disk state.
	// Its id is remembered so user references can be remapped below.
	noPolicyGroupID := ""

	for _, gd := range data.Groups {
		group := &Group{ID: gd.ID, Name: gd.Name, Policy: gd.Policy}
		if !applySystemGroup(group) {
			group.SystemGenerated = false
		}
		if group.Policy == nil {
			noPolicyGroupID = group.ID
			continue
		}
		groups[group.ID] = group
	}

	// Only a dataset with literally zero group records predates the group
	// concept entirely; its users are moved into the admin group.
	migrateUsersToAdminGroup := len(groups) == 0 && noPolicyGroupID == ""

	// A no-policy group alongside other groups is the expected historical
	// state and needs no remapping.
	if len(groups) > 0 && noPolicyGroupID != "" {
		noPolicyGroupID = ""
	}

	for _, id := range []string{GroupIDAdmin, GroupIDUser, GroupIDReadOnly} {
		if _, ok := groups[id]; !ok {
			groups[id] = systemGroup(id)
		}
	}

	users := map[string]*User{}
	for _, ud := range data.Users {
		user := &User{
			ID:              ud.ID,
			Name:            ud.Name,
			IsOwner:         ud.IsOwner,
			IsActive:        ud.IsActive,
			SystemGenerated: ud.SystemGenerated,
			RefreshTokens:   map[string]*RefreshToken{},
		}
		for _, gid := range ud.GroupIDs {
			if noPolicyGroupID != "" && gid == noPolicyGroupID {
				gid = GroupIDAdmin
			}
			group, ok := groups[gid]
			if !ok {
				log.WithFields(logrus.Fields{"user_id": ud.ID, "group_id": gid}).
					Error("Ignoring membership in unknown group")
				continue
			}
			user.Groups = append(user.Groups, group)
		}
		if !ud.SystemGenerated && migrateUsersToAdminGroup {
			user.Groups = append(user.Groups, groups[GroupIDAdmin])
		}
		users[user.ID] = user
	}

	for _, cd := range data.Credentials {
		user, ok := users[cd.UserID]
		if !ok {
			log.WithFields(logrus.Fields{"credential_id": cd.ID, "user_id": cd.UserID}).
				Error("Ignoring credentials for unknown user")
			continue
		}
		user.Credentials = append(user.Credentials, &Credentials{
			ID:               cd.ID,
			AuthProviderType: cd.AuthProviderType,
			AuthProviderID:   cd.AuthProviderID,
			Data:             cd.Data,
			IsNew:            false,
		})
	}

	for _, td := range data.RefreshTokens {
		if err := recordValidator.Struct(td); err != nil {
			// Records without a jwt_key predate signed access tokens and
			// are too old to migrate safely.
			log.WithField("token_id", td.ID).WithError(err).
				Error("Ignoring malformed refresh token record")
			continue
		}
		user, ok := users[td.UserID]
		if !ok {
			log.WithFields(logrus.Fields{"token_id": td.ID, "user_id": td.UserID}).
				Error("Ignoring refresh token for unknown user")
			continue
		}
		createdAt, err := time.Parse(time.RFC3339, td.CreatedAt)
		if err != nil {
			log.WithFields(logrus.Fields{"token_id": td.ID, "created_at": td.CreatedAt}).
				Error("Ignoring refresh token with invalid created_at")
			continue
		}

		tokenType := TokenType(td.TokenType)
		if td.TokenType == "" {
			// Legacy records carry no token_type; tokens without a client
			// were only ever minted for hub-internal use.
			if td.ClientID == nil {
				tokenType = TokenTypeSystem
			} else {
				tokenType = TokenTypeNormal
			}
		}

		var lastUsedAt *time.Time
		if td.LastUsedAt != nil {
			if t, err := time.Parse(time.RFC3339, *td.LastUsedAt); err == nil {
				lastUsedAt = &t
			}
		}

		token := &RefreshToken{
			ID:                    td.ID,
			User:                  user,
			ClientID:              td.ClientID,
			ClientName:            td.ClientName,
			ClientIcon:            td.ClientIcon,
			TokenType:             tokenType,
			Token:                 td.Token,
			JWTKey:                td.JWTKey,
			CreatedAt:             createdAt,
			AccessTokenExpiration: time.Duration(td.AccessTokenExpiration * float64(time.Second)),
			LastUsedAt:            lastUsedAt,
			LastUsedIP:            td.LastUsedIP,
		}
		user.RefreshTokens[token.ID] = token
	}

	return groups, users
}
