// Package membership tracks which guilds each ledger owner belongs to.
package membership

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/socialcredit/socialcredit-backend/internal/discord"
	"github.com/socialcredit/socialcredit-backend/internal/ledger"
)

// GuildSource looks up guild metadata.
type GuildSource interface {
	FetchGuild(ctx context.Context, guildID string) (*discord.Guild, error)
}

// Cache keeps per-owner membership records and the server roster index.
type Cache struct {
	store  ledger.Store
	guilds GuildSource

	// serialises roster read-modify-write within this process
	rosterMu sync.Mutex
}

// NewCache builds a cache. guilds may be nil, in which case only stub
// records are written.
func NewCache(store ledger.Store, guilds GuildSource) *Cache {
	return &Cache{store: store, guilds: guilds}
}

// RecordIfUnknown adds serverID to the owner's memberships when missing.
// Lookup and storage failures are logged, never returned.
func (c *Cache) RecordIfUnknown(ctx context.Context, ownerID, serverID string) {
	serverID = strings.TrimSpace(serverID)
	if serverID == "" || serverID == ledger.DirectMessageServerID {
		return
	}
	owner, err := c.store.FindOwner(ctx, ownerID)
	if err != nil || owner == nil {
		if err != nil {
			log.WithError(err).WithField("user_id", ownerID).Warn("membership lookup failed")
		}
		return
	}
	if owner.HasServer(serverID) {
		return
	}

	record := ledger.Membership{ServerID: serverID}
	if c.guilds != nil {
		guild, err := c.guilds.FetchGuild(ctx, serverID)
		if err != nil {
			log.WithError(err).WithField("server_id", serverID).Debug("guild enrichment failed, storing stub")
		} else {
			record.Name = guild.Name
			record.Icon = guild.IconURL
		}
	}

	_, err = ledger.MutateOwner(ctx, c.store, ownerID, func(o *ledger.Owner) error {
		if o.HasServer(serverID) {
			return ledger.ErrNoChange
		}
		o.Servers = append(o.Servers, record)
		return nil
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"user_id": ownerID, "server_id": serverID}).Warn("membership record failed")
		return
	}
	if err := c.addToRoster(ctx, record, ownerID); err != nil {
		log.WithError(err).WithField("server_id", serverID).Warn("roster update failed")
	}
}

// SyncFromOAuth replaces the owner's memberships with the guild list reported
// at login and adds the owner to each guild's roster.
func (c *Cache) SyncFromOAuth(ctx context.Context, ownerID string, guilds []discord.Guild) error {
	records := make([]ledger.Membership, 0, len(guilds))
	for _, g := range guilds {
		records = append(records, ledger.Membership{ServerID: g.ID, Name: g.Name, Icon: g.IconURL})
	}
	_, err := ledger.MutateOwner(ctx, c.store, ownerID, func(o *ledger.Owner) error {
		o.Servers = records
		return nil
	})
	if err != nil {
		return fmt.Errorf("sync memberships for %s: %w", ownerID, err)
	}
	for _, rec := range records {
		if err := c.addToRoster(ctx, rec, ownerID); err != nil {
			log.WithError(err).WithField("server_id", rec.ServerID).Warn("roster update failed")
		}
	}
	return nil
}

// Memberships returns the owner's recorded guilds.
func (c *Cache) Memberships(ctx context.Context, ownerID string) ([]ledger.Membership, error) {
	owner, err := c.store.FindOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ledger.ErrOwnerNotFound
	}
	return owner.Servers, nil
}

// Roster returns the known owners of a server, skipping ids with no record.
func (c *Cache) Roster(ctx context.Context, serverID string) ([]*ledger.Owner, error) {
	srv, err := c.store.FindServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, ledger.ErrServerNotFound
	}
	owners := make([]*ledger.Owner, 0, len(srv.MemberIDs))
	for _, id := range srv.MemberIDs {
		o, err := c.store.FindOwner(ctx, id)
		if err != nil {
			return nil, err
		}
		if o == nil {
			log.WithFields(log.Fields{"server_id": serverID, "user_id": id}).Warn("roster references unknown owner")
			continue
		}
		owners = append(owners, o)
	}
	return owners, nil
}

// RefreshServers re-reads name and icon for every known server. Servers the
// bot cannot see keep their stored metadata.
func (c *Cache) RefreshServers(ctx context.Context) (int, error) {
	if c.guilds == nil {
		return 0, nil
	}
	servers, err := c.store.ListServers(ctx)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, srv := range servers {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		guild, err := c.guilds.FetchGuild(ctx, srv.ServerID)
		if err != nil {
			log.WithError(err).WithField("server_id", srv.ServerID).Debug("server refresh skipped")
			continue
		}
		if guild.Name == srv.Name && guild.IconURL == srv.Icon {
			continue
		}
		if err := c.addToRoster(ctx, ledger.Membership{ServerID: srv.ServerID, Name: guild.Name, Icon: guild.IconURL}, ""); err != nil {
			return refreshed, err
		}
		refreshed++
	}
	return refreshed, nil
}

func (c *Cache) addToRoster(ctx context.Context, rec ledger.Membership, ownerID string) error {
	c.rosterMu.Lock()
	defer c.rosterMu.Unlock()

	srv, err := c.store.FindServer(ctx, rec.ServerID)
	if err != nil {
		return err
	}
	if srv == nil {
		srv = &ledger.Server{ServerID: rec.ServerID, MemberIDs: []string{}}
	}
	changed := false
	if rec.Name != "" && rec.Name != srv.Name {
		srv.Name = rec.Name
		changed = true
	}
	if rec.Icon != "" && rec.Icon != srv.Icon {
		srv.Icon = rec.Icon
		changed = true
	}
	if ownerID != "" && srv.AddMember(ownerID) {
		changed = true
	}
	if !changed && !srv.UpdatedAt.IsZero() {
		return nil
	}
	return c.store.UpsertServer(ctx, srv)
}
