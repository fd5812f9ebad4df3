package services

import (
	"context"
	"errors"
	"fmt"

	"binary-referral-system/models"

	"gorm.io/gorm"
)

// MembershipDirectory owns member rows. Counter and watermark changes go
// through this type only.
type MembershipDirectory struct {
	DB *gorm.DB
}

func NewMembershipDirectory(db *gorm.DB) *MembershipDirectory {
	return &MembershipDirectory{DB: db}
}

// Create inserts a member with zeroed counters.
func (d *MembershipDirectory) Create(tx *gorm.DB, memberID string, sponsorID *string) (*models.Member, error) {
	m := models.Member{ID: memberID, SponsorID: sponsorID}
	if err := tx.Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMember, memberID)
		}
		return nil, classifyDBError(err)
	}
	return &m, nil
}

// Exists is a plain read inside tx, used for validation before mutation.
func (d *MembershipDirectory) Exists(tx *gorm.DB, memberID string) (bool, error) {
	var n int64
	if err := tx.Model(&models.Member{}).Where("id = ?", memberID).Count(&n).Error; err != nil {
		return false, classifyDBError(err)
	}
	return n > 0, nil
}

// IncrementSide atomically adds one to the side counter and returns the
// member as it is after the increment. The UPDATE holds the row lock until
// the transaction ends, so concurrent callers serialize.
func (d *MembershipDirectory) IncrementSide(tx *gorm.DB, memberID string, side models.Side) (*models.Member, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	col := side.Column()
	res := tx.Model(&models.Member{}).Where("id = ?", memberID).
		Update(col, gorm.Expr(col+" + 1"))
	if res.Error != nil {
		return nil, classifyDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
	}
	return d.lock(tx, memberID)
}

// MarkSelfPairsPaid advances selfPairsPaid. The new value must be strictly
// greater than the current one and not above min(left, right).
func (d *MembershipDirectory) MarkSelfPairsPaid(tx *gorm.DB, memberID string, watermark int64) error {
	return d.advance(tx, memberID, "self_pairs_paid", watermark, func(m *models.Member) int64 { return m.SelfPairsPaid })
}

// MarkSponsorPairsPaid advances sponsorPairsPaid with the same rules.
func (d *MembershipDirectory) MarkSponsorPairsPaid(tx *gorm.DB, memberID string, watermark int64) error {
	return d.advance(tx, memberID, "sponsor_pairs_paid", watermark, func(m *models.Member) int64 { return m.SponsorPairsPaid })
}

func (d *MembershipDirectory) advance(tx *gorm.DB, memberID, column string, watermark int64, current func(*models.Member) int64) error {
	m, err := d.lock(tx, memberID)
	if err != nil {
		return err
	}
	if watermark <= current(m) {
		return fmt.Errorf("%w: %s %s at %d, got %d", ErrStaleWatermark, memberID, column, current(m), watermark)
	}
	if watermark > m.TotalPairs() {
		return fmt.Errorf("%w: %s has %d pairs, got %d", ErrInvalidWatermark, memberID, m.TotalPairs(), watermark)
	}

	res := tx.Model(&models.Member{}).
		Where("id = ? AND "+column+" < ?", memberID, watermark).
		Update(column, watermark)
	if res.Error != nil {
		return classifyDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s moved concurrently", ErrStaleWatermark, memberID, column)
	}
	return nil
}

// lock reads the member row with FOR UPDATE.
func (d *MembershipDirectory) lock(tx *gorm.DB, memberID string) (*models.Member, error) {
	var m models.Member
	if err := forUpdate(tx).First(&m, "id = ?", memberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
		}
		return nil, classifyDBError(err)
	}
	return &m, nil
}

// Get is a pure read outside any transaction.
func (d *MembershipDirectory) Get(ctx context.Context, memberID string) (*models.Member, error) {
	var m models.Member
	if err := d.DB.WithContext(ctx).First(&m, "id = ?", memberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
		}
		return nil, err
	}
	return &m, nil
}
