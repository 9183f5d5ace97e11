package auth

import "time"

// snapshotData renders the in-memory graph back into the persisted document
// shape. System group policies are omitted: they are re-derived on every load
// and never trusted from disk.
func snapshotData(groups map[string]*Group, users map[string]*User) *storeData {
	data := &storeData{
		Users:         []userData{},
		Groups:        []groupData{},
		Credentials:   []credentialData{},
		RefreshTokens: []tokenData{},
	}

	for _, group := range groups {
		gd := groupData{ID: group.ID, Name: group.Name}
		if !group.SystemGenerated {
			gd.Policy = group.Policy
		}
		data.Groups = append(data.Groups, gd)
	}

	for _, user := range users {
		groupIDs := make([]string, 0, len(user.Groups))
		for _, group := range user.Groups {
			groupIDs = append(groupIDs, group.ID)
		}
		data.Users = append(data.Users, userData{
			ID:              user.ID,
			GroupIDs:        groupIDs,
			IsOwner:         user.IsOwner,
			IsActive:        user.IsActive,
			Name:            user.Name,
			SystemGenerated: user.SystemGenerated,
		})

		for _, cred := range user.Credentials {
			data.Credentials = append(data.Credentials, credentialData{
				ID:               cred.ID,
				UserID:           user.ID,
				AuthProviderType: cred.AuthProviderType,
				AuthProviderID:   cred.AuthProviderID,
				Data:             cred.Data,
			})
		}

		for _, token := range user.RefreshTokens {
			td := tokenData{
				ID:                    token.ID,
				UserID:                user.ID,
				ClientID:              token.ClientID,
				ClientName:            token.ClientName,
				ClientIcon:            token.ClientIcon,
				TokenType:             string(token.TokenType),
				CreatedAt:             token.CreatedAt.UTC().Format(time.RFC3339Nano),
				AccessTokenExpiration: token.AccessTokenExpiration.Seconds(),
				Token:                 token.Token,
				JWTKey:                token.JWTKey,
				LastUsedIP:            token.LastUsedIP,
			}
			if token.LastUsedAt != nil {
				s := token.LastUsedAt.UTC().Format(time.RFC3339Nano)
				td.LastUsedAt = &s
			}
			data.RefreshTokens = append(data.RefreshTokens, td)
		}
	}

	return data
}
