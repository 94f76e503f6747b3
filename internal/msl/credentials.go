package msl

import "context"

// ResolveCredentials implements spec.md §4.3: consults the Token Factory
// for entity, master-token, and user-ID-token revocation. Signature-level
// trust (ENTITYAUTH_VERIFICATION_FAILED, MASTERTOKEN_UNTRUSTED,
// USERIDTOKEN_UNTRUSTED) has already been settled during header parsing;
// this stage only asks whether an otherwise-trusted credential has since
// been revoked.
func ResolveCredentials(ctx context.Context, mctx *Context, mh *MessageHeader) error {
	msgID := mh.MessageID

	if mh.MasterToken != nil {
		reason, revoked, err := mctx.TokenFactory.IsEntityRevoked(ctx, mh.MasterToken.Identity)
		if err != nil {
			return newError(KindMasterTokenIdentityRevoked, &msgID, mh.MasterToken.Identity, "", err)
		}
		if revoked {
			return newError(KindMasterTokenIdentityRevoked, &msgID, mh.MasterToken.Identity, "", errRevoked(reason))
		}

		reason, revoked, err = mctx.TokenFactory.IsMasterTokenRevoked(ctx, mh.MasterToken)
		if err != nil {
			return newError(KindMasterTokenRevoked, &msgID, mh.MasterToken.Identity, "", err)
		}
		if revoked {
			return newError(KindMasterTokenRevoked, &msgID, mh.MasterToken.Identity, "", errRevoked(reason))
		}
	} else if mh.EntityAuthData != nil {
		reason, revoked, err := mctx.TokenFactory.IsEntityRevoked(ctx, mh.EntityAuthData.Identity)
		if err != nil {
			return newError(KindEntityRevoked, &msgID, mh.EntityAuthData.Identity, "", err)
		}
		if revoked {
			return newError(KindEntityRevoked, &msgID, mh.EntityAuthData.Identity, "", errRevoked(reason))
		}
	}

	if mh.UserIDToken != nil {
		identity := resolveIdentity(mh)
		reason, revoked, err := mctx.TokenFactory.IsUserIDTokenRevoked(ctx, mh.MasterToken, mh.UserIDToken)
		if err != nil {
			return newError(KindUserIDTokenRevoked, &msgID, identity, mh.UserIDToken.User, err)
		}
		if revoked {
			return newError(KindUserIDTokenRevoked, &msgID, identity, mh.UserIDToken.User, errRevoked(reason))
		}
	}

	return nil
}

// resolveIdentity implements spec.md §3 invariant I4 for a message header:
// the master token's identity if present, else the entity auth data's.
func resolveIdentity(mh *MessageHeader) string {
	if mh.MasterToken != nil {
		return mh.MasterToken.Identity
	}
	if mh.EntityAuthData != nil {
		return mh.EntityAuthData.Identity
	}
	return ""
}

// resolveUser returns the user-ID token's user, if any.
func resolveUser(mh *MessageHeader) string {
	if mh.UserIDToken != nil {
		return mh.UserIDToken.User
	}
	return ""
}

type errRevoked string

func (e errRevoked) Error() string { return string(e) }
