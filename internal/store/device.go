package store

import (
	"context"

	"netwallfa/internal/model"
)

// UpsertDeviceIdentification records or refreshes the enrichment fields a
// DEVICE record carries for one (firewall_key, mac), then pushes those same
// fields onto every already-known Endpoint sharing that key/mac so existing
// flows pick up hostnames/vendors discovered after the fact.
//
// Grounded on _upsert_device_identification / _sync_endpoints_from_device_identification.
func (s *Store) UpsertDeviceIdentification(ctx context.Context, d model.DeviceIdentification) error {
	err := s.withWriteLock(func() error {
		return s.retryOnLock(ctx, func() error {
			return s.upsertDeviceIdentificationInner(ctx, d)
		})
	})
	if err != nil {
		s.deadLetter("device_identification", d.FirewallKey, d.FirewallKey+"/"+d.MAC, d, err)
	}
	return err
}

func (s *Store) upsertDeviceIdentificationInner(ctx context.Context, d model.DeviceIdentification) error {
	upsertQ := s.dialect.rebind(`INSERT INTO device_identifications (
		firewall_key, mac, device_name, hostname, vendor, device_type, os, brand, model, rank
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (firewall_key, mac) DO UPDATE SET
		device_name = COALESCE(NULLIF(excluded.device_name, ''), device_identifications.device_name),
		hostname = COALESCE(NULLIF(excluded.hostname, ''), device_identifications.hostname),
		vendor = COALESCE(NULLIF(excluded.vendor, ''), device_identifications.vendor),
		device_type = COALESCE(NULLIF(excluded.device_type, ''), device_identifications.device_type),
		os = COALESCE(NULLIF(excluded.os, ''), device_identifications.os),
		brand = COALESCE(NULLIF(excluded.brand, ''), device_identifications.brand),
		model = COALESCE(NULLIF(excluded.model, ''), device_identifications.model),
		rank = CASE WHEN excluded.rank > device_identifications.rank THEN excluded.rank ELSE device_identifications.rank END`)
	if _, err := s.db.ExecContext(ctx, upsertQ, d.FirewallKey, d.MAC, nullString(d.DeviceName), nullString(d.Hostname),
		nullString(d.Vendor), nullString(d.DeviceType), nullString(d.OS), nullString(d.Brand), nullString(d.Model), d.Rank); err != nil {
		return err
	}

	syncQ := s.dialect.rebind(`UPDATE endpoints SET
		hostname = COALESCE(NULLIF(?, ''), hostname),
		vendor = COALESCE(NULLIF(?, ''), vendor),
		device_type = COALESCE(NULLIF(?, ''), device_type),
		os = COALESCE(NULLIF(?, ''), os),
		brand = COALESCE(NULLIF(?, ''), brand),
		model = COALESCE(NULLIF(?, ''), model),
		rank = CASE WHEN ? > rank THEN ? ELSE rank END
		WHERE firewall_key = ? AND mac = ?`)
	_, err := s.db.ExecContext(ctx, syncQ, d.Hostname, d.Vendor, d.DeviceType, d.OS, d.Brand, d.Model,
		d.Rank, d.Rank, d.FirewallKey, d.MAC)
	return err
}
