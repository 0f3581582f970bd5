package networksegment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"time"

	"site-controller/feature/networksegment/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPoolExhausted is returned when a segment has no free address left.
var ErrPoolExhausted = errors.New("no free address in segment")

// addressScanLimit bounds the number of candidates tried per allocation.
const addressScanLimit = 1 << 16

// IPStats summarizes the address space of a segment.
type IPStats struct {
	Total     float64
	Reserved  float64
	Allocated float64
}

// Available is the number of addresses that can still be allocated.
func (s IPStats) Available() float64 {
	return math.Max(0, s.Total-s.Reserved-s.Allocated)
}

// prefixSize returns the number of addresses in p.
func prefixSize(p netip.Prefix) float64 {
	return math.Exp2(float64(p.Addr().BitLen() - p.Bits()))
}

// countAllocated returns the number of addresses allocated from segmentID.
func countAllocated(ctx context.Context, db *gorm.DB, segmentID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&models.Address{}).Where("segment_id = ?", segmentID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count allocated addresses: %w", err)
	}
	return n, nil
}

// Allocate assigns the lowest free address of a ready segment. The first
// ReservedIPs addresses of the prefix are never handed out.
func Allocate(ctx context.Context, db *gorm.DB, segmentID string, now time.Time) (*models.Address, error) {
	var addr *models.Address
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seg models.NetworkSegment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", segmentID).Take(&seg).Error; err != nil {
			return err
		}
		if seg.ControllerState.Data.State != models.StateReady || seg.Deleted != nil {
			return fmt.Errorf("segment %s is not ready for allocation", segmentID)
		}
		prefix, err := netip.ParsePrefix(seg.Prefix)
		if err != nil {
			return fmt.Errorf("segment %s has an invalid prefix: %w", segmentID, err)
		}

		var used []string
		if err := tx.Model(&models.Address{}).Where("segment_id = ?", segmentID).Pluck("address", &used).Error; err != nil {
			return err
		}
		taken := make(map[string]struct{}, len(used))
		for _, u := range used {
			taken[u] = struct{}{}
		}

		candidate := prefix.Masked().Addr()
		for i := 0; i < seg.ReservedIPs; i++ {
			candidate = candidate.Next()
		}
		for i := 0; i < addressScanLimit && candidate.IsValid() && prefix.Contains(candidate); i++ {
			if _, ok := taken[candidate.String()]; !ok {
				addr = &models.Address{SegmentID: segmentID, Address: candidate.String(), AllocatedAt: now}
				return tx.Create(addr).Error
			}
			candidate = candidate.Next()
		}
		return ErrPoolExhausted
	})
	if err != nil {
		return nil, err
	}
	return addr, nil
}

// Release frees address in segmentID.
func Release(ctx context.Context, db *gorm.DB, segmentID, address string) error {
	res := db.WithContext(ctx).Where("segment_id = ? AND address = ?", segmentID, address).Delete(&models.Address{})
	if res.Error != nil {
		return fmt.Errorf("failed to release %s: %w", address, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
