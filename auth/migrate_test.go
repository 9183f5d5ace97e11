package auth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findler.com/hubauth/permissions"
)

func TestMigrateNilDocument(t *testing.T) {
	groups, users := migrateData(nil, testLogger())

	assert.Empty(t, users)
	require.Len(t, groups, 3)
	for _, id := range []string{GroupIDAdmin, GroupIDUser, GroupIDReadOnly} {
		require.Contains(t, groups, id)
		assert.True(t, groups[id].SystemGenerated)
	}
}

func TestMigrateOldestFormatMovesUsersToAdmin(t *testing.T) {
	// A document with zero group records predates the group concept; human
	// users become admins, system users do not.
	doc := &storeData{
		Users: []userData{
			{ID: "human", Name: "Human", IsActive: true},
			{ID: "service", Name: "Service", IsActive: true, SystemGenerated: true},
		},
	}
	groups, users := migrateData(doc, testLogger())
	require.Len(t, groups, 3)

	human := users["human"]
	require.NotNil(t, human)
	require.Len(t, human.Groups, 1)
	assert.Equal(t, GroupIDAdmin, human.Groups[0].ID)

	service := users["service"]
	require.NotNil(t, service)
	assert.Empty(t, service.Groups)
}

func TestMigrateNoPolicyGroupRemapsToAdmin(t *testing.T) {
	// One group without a policy is the old single-group format: references
	// to it become admin membership, and no blanket admin migration runs.
	doc := &storeData{
		Groups: []groupData{{ID: "legacy-group", Name: "Legacy"}},
		Users: []userData{
			{ID: "member", IsActive: true, GroupIDs: []string{"legacy-group"}},
			{ID: "loner", IsActive: true},
		},
	}
	groups, users := migrateData(doc, testLogger())
	require.Len(t, groups, 3, "the no-policy group itself is not kept")

	member := users["member"]
	require.Len(t, member.Groups, 1)
	assert.Equal(t, GroupIDAdmin, member.Groups[0].ID)

	assert.Empty(t, users["loner"].Groups, "users outside the legacy group gain nothing")
}

func TestMigrateNoPolicyGroupIgnoredNextToOthers(t *testing.T) {
	// A no-policy group alongside real groups needs no remapping; references
	// to it are dropped.
	doc := &storeData{
		Groups: []groupData{
			{ID: "stripped", Name: "Stripped"},
			{ID: "custom", Name: "Custom", Policy: permissions.Policy{"entities": true}},
		},
		Users: []userData{
			{ID: "u1", IsActive: true, GroupIDs: []string{"stripped", "custom"}},
		},
	}
	groups, users := migrateData(doc, testLogger())
	require.Len(t, groups, 4)
	require.Contains(t, groups, "custom")
	assert.False(t, groups["custom"].SystemGenerated)

	u := users["u1"]
	require.Len(t, u.Groups, 1)
	assert.Equal(t, "custom", u.Groups[0].ID)
}

func TestMigrateSkipsTokenWithoutJWTKey(t *testing.T) {
	doc := &storeData{
		Users: []userData{{ID: "u1", IsActive: true}},
		RefreshTokens: []tokenData{
			{
				ID: "ancient", UserID: "u1", Token: "secret-a",
				CreatedAt: "2018-01-01T00:00:00Z",
			},
			{
				ID: "valid", UserID: "u1", Token: "secret-b", JWTKey: "key-b",
				CreatedAt: "2020-06-01T12:00:00Z", AccessTokenExpiration: 1800,
			},
		},
	}
	_, users := migrateData(doc, testLogger())

	tokens := users["u1"].RefreshTokens
	require.Len(t, tokens, 1, "records predating jwt_key are dropped")
	require.Contains(t, tokens, "valid")
	assert.Equal(t, 30*time.Minute, tokens["valid"].AccessTokenExpiration)
}

func TestMigrateOnlyJWTKeyGatesTokenRecords(t *testing.T) {
	// Empty token or id fields are carried through as-is; the migration skip
	// is reserved for records predating jwt_key.
	doc := &storeData{
		Users: []userData{{ID: "u1", IsActive: true}},
		RefreshTokens: []tokenData{
			{
				ID: "sparse", UserID: "u1", JWTKey: "k",
				CreatedAt: "2019-01-01T00:00:00Z",
			},
		},
	}
	_, users := migrateData(doc, testLogger())

	tokens := users["u1"].RefreshTokens
	require.Len(t, tokens, 1)
	assert.Empty(t, tokens["sparse"].Token)
}

func TestMigrateSkipsTokenWithBadCreatedAt(t *testing.T) {
	doc := &storeData{
		Users: []userData{{ID: "u1", IsActive: true}},
		RefreshTokens: []tokenData{
			{
				ID: "bad-date", UserID: "u1", Token: "s", JWTKey: "k",
				CreatedAt: "not-a-timestamp",
			},
		},
	}
	_, users := migrateData(doc, testLogger())
	assert.Empty(t, users["u1"].RefreshTokens)
}

func TestMigrateLegacyTokenTypeDefault(t *testing.T) {
	clientID := "some-client"
	doc := &storeData{
		Users: []userData{{ID: "u1", IsActive: true}},
		RefreshTokens: []tokenData{
			{
				ID: "no-client", UserID: "u1", Token: "s1", JWTKey: "k1",
				CreatedAt: "2019-01-01T00:00:00Z",
			},
			{
				ID: "with-client", UserID: "u1", ClientID: &clientID,
				Token: "s2", JWTKey: "k2", CreatedAt: "2019-01-01T00:00:00Z",
			},
		},
	}
	_, users := migrateData(doc, testLogger())

	tokens := users["u1"].RefreshTokens
	require.Len(t, tokens, 2)
	assert.Equal(t, TokenTypeSystem, tokens["no-client"].TokenType)
	assert.Equal(t, TokenTypeNormal, tokens["with-client"].TokenType)
	assert.Nil(t, tokens["no-client"].LastUsedAt, "absent last_used_at stays nil")
}

func TestSnapshotRoundTrip(t *testing.T) {
	clientID := "client-7"
	// Sub-second precision must survive the round trip.
	lastUsed := time.Date(2024, 3, 1, 8, 30, 0, 123456789, time.UTC)

	custom := &Group{
		ID:     "custom-group",
		Name:   "Custom",
		Policy: permissions.Policy{"entities": map[string]any{"domains": map[string]any{"light": true}}},
	}
	groups := map[string]*Group{
		GroupIDAdmin:    systemGroup(GroupIDAdmin),
		GroupIDUser:     systemGroup(GroupIDUser),
		GroupIDReadOnly: systemGroup(GroupIDReadOnly),
		custom.ID:       custom,
	}

	alice := &User{
		ID: "alice", Name: "Alice", IsOwner: true, IsActive: true,
		Groups:        []*Group{groups[GroupIDAdmin], custom},
		RefreshTokens: map[string]*RefreshToken{},
	}
	bob := &User{
		ID: "bob", Name: "Bob", IsActive: false,
		Groups:        []*Group{groups[GroupIDUser]},
		RefreshTokens: map[string]*RefreshToken{},
	}
	alice.Credentials = []*Credentials{
		{ID: "c1", AuthProviderType: PasswordProviderType, Data: json.RawMessage(`{"username":"alice"}`)},
		{ID: "c2", AuthProviderType: "oauth", AuthProviderID: strPtr("google"), Data: json.RawMessage(`{"sub":"123"}`)},
	}
	bob.Credentials = []*Credentials{
		{ID: "c3", AuthProviderType: PasswordProviderType, Data: json.RawMessage(`{"username":"bob"}`)},
	}
	t1 := &RefreshToken{
		ID: "t1", User: alice, ClientID: &clientID, ClientName: "App",
		TokenType: TokenTypeNormal, Token: "secret-1", JWTKey: "key-1",
		CreatedAt:             time.Date(2023, 1, 2, 3, 4, 5, 600000000, time.UTC),
		AccessTokenExpiration: 30 * time.Minute,
		LastUsedAt:            &lastUsed, LastUsedIP: "192.168.1.20",
	}
	t2 := &RefreshToken{
		ID: "t2", User: bob, TokenType: TokenTypeSystem,
		Token: "secret-2", JWTKey: "key-2",
		CreatedAt:             time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC),
		AccessTokenExpiration: 5 * time.Minute,
	}
	alice.RefreshTokens[t1.ID] = t1
	bob.RefreshTokens[t2.ID] = t2
	users := map[string]*User{"alice": alice, "bob": bob}

	// Serialize, pass through JSON, and re-migrate.
	raw, err := json.Marshal(snapshotData(groups, users))
	require.NoError(t, err)
	var doc storeData
	require.NoError(t, json.Unmarshal(raw, &doc))
	gotGroups, gotUsers := migrateData(&doc, testLogger())

	require.Len(t, gotGroups, 4)
	assert.Equal(t, custom.Name, gotGroups["custom-group"].Name)
	assert.False(t, gotGroups["custom-group"].SystemGenerated)
	// Policies re-derive for system groups and round-trip for custom ones.
	assert.Equal(t, permissions.SystemAdminPolicy(), gotGroups[GroupIDAdmin].Policy)
	assert.True(t, gotGroups["custom-group"].Policy["entities"].(map[string]any)["domains"].(map[string]any)["light"].(bool))

	require.Len(t, gotUsers, 2)
	gotAlice := gotUsers["alice"]
	assert.Equal(t, alice.Name, gotAlice.Name)
	assert.True(t, gotAlice.IsOwner)
	assert.True(t, gotAlice.IsActive)
	require.Len(t, gotAlice.Groups, 2)
	assert.Equal(t, GroupIDAdmin, gotAlice.Groups[0].ID)
	assert.Equal(t, "custom-group", gotAlice.Groups[1].ID)
	require.Len(t, gotAlice.Credentials, 2)
	assert.Equal(t, "c1", gotAlice.Credentials[0].ID)
	assert.False(t, gotAlice.Credentials[0].IsNew)
	require.NotNil(t, gotAlice.Credentials[1].AuthProviderID)
	assert.Equal(t, "google", *gotAlice.Credentials[1].AuthProviderID)

	gotT1 := gotAlice.RefreshTokens["t1"]
	require.NotNil(t, gotT1)
	assert.Equal(t, t1.Token, gotT1.Token)
	assert.Equal(t, t1.JWTKey, gotT1.JWTKey)
	assert.Equal(t, t1.TokenType, gotT1.TokenType)
	assert.Equal(t, t1.CreatedAt, gotT1.CreatedAt)
	assert.Equal(t, t1.AccessTokenExpiration, gotT1.AccessTokenExpiration)
	require.NotNil(t, gotT1.LastUsedAt)
	assert.True(t, lastUsed.Equal(*gotT1.LastUsedAt))
	assert.Equal(t, "192.168.1.20", gotT1.LastUsedIP)
	require.NotNil(t, gotT1.ClientID)
	assert.Equal(t, clientID, *gotT1.ClientID)
	assert.Same(t, gotAlice, gotT1.User)

	gotBob := gotUsers["bob"]
	assert.False(t, gotBob.IsActive)
	gotT2 := gotBob.RefreshTokens["t2"]
	require.NotNil(t, gotT2)
	assert.Equal(t, TokenTypeSystem, gotT2.TokenType)
	assert.Nil(t, gotT2.ClientID)
	assert.Nil(t, gotT2.LastUsedAt)
}

func strPtr(s string) *string { return &s }
