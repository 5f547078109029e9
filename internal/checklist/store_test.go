package checklist

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/ejaar/internal/models"
)

func setupStoreDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.DocumentSlot{}))
	return db
}

func TestStoreUpdateAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupStoreDB(t), DefaultCatalog())

	cl, err := store.Load(ctx, "Q-7")
	require.NoError(t, err)
	assert.Equal(t, SlotEmpty, cl.Slots()[0].Status)

	_, err = store.Update(ctx, "Q-7", "u-1", func(cl *Checklist) error {
		return cl.Begin("statuts", pdf)
	})
	require.NoError(t, err)

	_, err = store.Update(ctx, "Q-7", "u-1", func(cl *Checklist) error {
		return cl.Begin("statuts", pdf)
	})
	assert.ErrorIs(t, err, ErrUploadInProgress)

	_, err = store.Update(ctx, "Q-7", "u-1", func(cl *Checklist) error {
		return cl.Complete("statuts", "d1", "https://files/d1")
	})
	require.NoError(t, err)

	cl, err = store.Load(ctx, "Q-7")
	require.NoError(t, err)
	s, _ := cl.Slot("statuts")
	assert.Equal(t, SlotSuccess, s.Status)
	assert.Equal(t, "d1", s.RemoteID)
	assert.Equal(t, "statuts.pdf", s.FileName)

	var row models.DocumentSlot
	require.NoError(t, store.db.Where("quotation_id = ? AND doc_type = ?", "Q-7", "statuts").First(&row).Error)
	assert.Equal(t, 2, row.Version)
	assert.Equal(t, "u-1", row.UpdatedBy)

	other, err := store.Load(ctx, "Q-8")
	require.NoError(t, err)
	s, _ = other.Slot("statuts")
	assert.Equal(t, SlotEmpty, s.Status)
}

func TestStoreUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupStoreDB(t), DefaultCatalog())
	boom := errors.New("boom")

	_, err := store.Update(ctx, "Q-1", "u", func(cl *Checklist) error {
		if err := cl.Begin("bilans", pdf); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	store.db.Model(&models.DocumentSlot{}).Count(&count)
	assert.Zero(t, count)
}

func TestStoreDetectsConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupStoreDB(t), DefaultCatalog())

	_, err := store.Update(ctx, "Q-2", "u", func(cl *Checklist) error { return cl.Begin("bilans", pdf) })
	require.NoError(t, err)

	stale, err := store.Load(ctx, "Q-2")
	require.NoError(t, err)

	_, err = store.Update(ctx, "Q-2", "u", func(cl *Checklist) error { return cl.Fail("bilans", "timeout") })
	require.NoError(t, err)

	require.NoError(t, stale.Complete("bilans", "d1", ""))
	err = store.db.Transaction(func(tx *gorm.DB) error { return store.save(tx, stale, "u") })
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
}

func TestStoreSync(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupStoreDB(t), DefaultCatalog())

	cl, err := store.Sync(ctx, "Q-3", []RemoteDocument{{ID: "d1", Type: "statuts", URL: "u1"}})
	require.NoError(t, err)
	s, _ := cl.Slot("statuts")
	assert.Equal(t, SlotSuccess, s.Status)

	cl, err = store.Sync(ctx, "Q-3", nil)
	require.NoError(t, err)
	s, _ = cl.Slot("statuts")
	assert.Equal(t, SlotEmpty, s.Status)

	require.NoError(t, store.Delete(ctx, "Q-3"))
	var count int64
	store.db.Model(&models.DocumentSlot{}).Where("quotation_id = ?", "Q-3").Count(&count)
	assert.Zero(t, count)
}
