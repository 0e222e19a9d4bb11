package gpg

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/dd-repo/hp/internal/config"
	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/util"
)

// ErrKeyNotFound means the keyserver has no key under the fingerprint.
var ErrKeyNotFound = errors.New("key not found on keyserver")

// KeyserverClient fetches public keys over HKP and refreshes the stored
// metadata (expiry, revocation) from what the keyserver currently serves.
type KeyserverClient struct {
	baseURL string
	http    *http.Client
}

func NewKeyserverClient(cfg *config.Config) *KeyserverClient {
	return &KeyserverClient{
		baseURL: strings.TrimRight(cfg.Keyserver.URL, "/"),
		http: &http.Client{
			Timeout: cfg.Keyserver.Timeout,
		},
	}
}

// Refresh looks the key up on the keyserver and updates its expiry,
// revocation flag and refresh timestamp in place. The caller persists the
// result.
func (c *KeyserverClient) Refresh(ctx context.Context, key *models.GpgKey) error {
	lookupURL := fmt.Sprintf("%s/pks/lookup?op=get&options=mr&search=0x%s", c.baseURL, key.Fingerprint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build keyserver request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("keyserver lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key.Fingerprint)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("keyserver returned status %d for %s", resp.StatusCode, key.Fingerprint)
	}

	entities, err := openpgp.ReadArmoredKeyRing(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse keyserver response: %w", err)
	}

	entity := matchEntity(entities, key.Fingerprint)
	if entity == nil {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key.Fingerprint)
	}

	key.Revoked = len(entity.Revocations) > 0
	key.Expires = primaryKeyExpiry(entity)
	now := time.Now().UTC()
	key.Refreshed = &now

	util.Debug("GPG key refreshed from keyserver",
		zap.String("fingerprint", key.Fingerprint),
		zap.Bool("revoked", key.Revoked))
	return nil
}

func matchEntity(entities openpgp.EntityList, fingerprint string) *openpgp.Entity {
	want := strings.ToLower(strings.ReplaceAll(fingerprint, " ", ""))
	for _, entity := range entities {
		got := hex.EncodeToString(entity.PrimaryKey.Fingerprint[:])
		if got == want {
			return entity
		}
	}
	return nil
}

// primaryKeyExpiry derives the expiry from the self-signature lifetime, or
// nil for keys that never expire.
func primaryKeyExpiry(entity *openpgp.Entity) *time.Time {
	ident := entity.PrimaryIdentity()
	if ident == nil || ident.SelfSignature == nil || ident.SelfSignature.KeyLifetimeSecs == nil {
		return nil
	}
	lifetime := time.Duration(*ident.SelfSignature.KeyLifetimeSecs) * time.Second
	expires := entity.PrimaryKey.CreationTime.Add(lifetime).UTC()
	return &expires
}
