package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/igor-kupczynski/foodbuddy/internal/model"
	"github.com/igor-kupczynski/foodbuddy/internal/store"
)

// New constructs a SQLite-backed store over an open connection.
func New(db *sql.DB) store.Store { return &sqlStore{db: db} }

type sqlStore struct{ db *sql.DB }

func (s *sqlStore) MealTypes() store.MealTypes     { return &mealTypes{db: s.db} }
func (s *sqlStore) Meals() store.Meals             { return &meals{db: s.db} }
func (s *sqlStore) Entries() store.Entries         { return &entries{db: s.db} }
func (s *sqlStore) PhotoAssets() store.PhotoAssets { return &photoAssets{db: s.db} }

// HealthPing reports connectivity to the underlying database.
func (s *sqlStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Meal types ---

type mealTypes struct{ db *sql.DB }

func (t *mealTypes) Create(ctx context.Context, m *model.MealType) error {
	_, err := t.db.ExecContext(ctx, `
        INSERT INTO meal_types (id, display_name, normalized_name, is_system, created_at, updated_at)
        VALUES (?,?,?,?,?,?)`,
		m.ID, m.DisplayName, normalizeName(m.DisplayName), m.IsSystem, m.CreatedAt, m.UpdatedAt)
	return err
}

func (t *mealTypes) Get(ctx context.Context, id uuid.UUID) (*model.MealType, error) {
	row := t.db.QueryRowContext(ctx, `
        SELECT id, display_name, is_system, created_at, updated_at
        FROM meal_types WHERE id = ?`, id)
	return scanMealType(row)
}

func (t *mealTypes) List(ctx context.Context) ([]*model.MealType, error) {
	rows, err := t.db.QueryContext(ctx, `
        SELECT id, display_name, is_system, created_at, updated_at
        FROM meal_types ORDER BY display_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.MealType
	for rows.Next() {
		var m model.MealType
		if err := rows.Scan(&m.ID, &m.DisplayName, &m.IsSystem, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (t *mealTypes) Update(ctx context.Context, m *model.MealType) error {
	res, err := t.db.ExecContext(ctx, `
        UPDATE meal_types SET display_name = ?, normalized_name = ?, is_system = ?, updated_at = ?
        WHERE id = ?`,
		m.DisplayName, normalizeName(m.DisplayName), m.IsSystem, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- Meals ---

type meals struct{ db *sql.DB }

const mealColumns = `id, type_id, created_at, updated_at, ai_description, user_notes, ai_analysis_status`

func (m *meals) Get(ctx context.Context, id uuid.UUID) (*model.Meal, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+mealColumns+` FROM meals WHERE id = ?`, id)
	return scanMeal(row)
}

func (m *meals) FindByTypeAndDay(ctx context.Context, typeID uuid.UUID, dayStart time.Time) (*model.Meal, error) {
	row := m.db.QueryRowContext(ctx, `
        SELECT `+mealColumns+` FROM meals WHERE type_id = ? AND created_at = ?`, typeID, dayStart)
	return scanMeal(row)
}

func (m *meals) Create(ctx context.Context, v *model.Meal) error {
	_, err := m.db.ExecContext(ctx, insertMealSQL, mealArgs(v)...)
	return err
}

func (m *meals) Update(ctx context.Context, v *model.Meal) error {
	res, err := m.db.ExecContext(ctx, `
        UPDATE meals SET type_id = ?, updated_at = ?, ai_description = ?, user_notes = ?, ai_analysis_status = ?
        WHERE id = ?`,
		v.TypeID, v.UpdatedAt, nullStr(v.AIDescription), nullStr(v.UserNotes), string(v.AnalysisStatus), v.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (m *meals) Touch(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := m.db.ExecContext(ctx, `UPDATE meals SET updated_at = ? WHERE id = ?`, now, id)
	return err
}

func (m *meals) DeleteIfEmpty(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
        DELETE FROM meals
        WHERE id = ? AND NOT EXISTS (SELECT 1 FROM meal_entries WHERE meal_id = ?)`, id, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (m *meals) ClaimNextPendingAnalysis(ctx context.Context, now time.Time) (*model.Meal, error) {
	for {
		var id uuid.UUID
		err := m.db.QueryRowContext(ctx, `
            SELECT id FROM meals WHERE ai_analysis_status = ? ORDER BY updated_at ASC LIMIT 1`,
			string(model.AnalysisPending)).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, model.ErrNotFound
		}
		if err != nil {
			return nil, err
		}

		// Conditional flip: the status predicate makes the claim atomic, so
		// a meal already analyzing is never claimed twice.
		res, err := m.db.ExecContext(ctx, `
            UPDATE meals SET ai_analysis_status = ?, updated_at = ?
            WHERE id = ? AND ai_analysis_status = ?`,
			string(model.AnalysisAnalyzing), now, id, string(model.AnalysisPending))
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// lost the race for this meal, look for another candidate
			continue
		}
		return m.Get(ctx, id)
	}
}

func (m *meals) SetAnalysisResult(ctx context.Context, id uuid.UUID, status model.AnalysisStatus, description *string, now time.Time) error {
	var err error
	if description != nil {
		_, err = m.db.ExecContext(ctx, `
            UPDATE meals SET ai_analysis_status = ?, ai_description = ?, updated_at = ? WHERE id = ?`,
			string(status), *description, now, id)
	} else {
		_, err = m.db.ExecContext(ctx, `
            UPDATE meals SET ai_analysis_status = ?, updated_at = ? WHERE id = ?`,
			string(status), now, id)
	}
	return err
}

// --- Entries ---

type entries struct{ db *sql.DB }

const entryColumns = `id, meal_id, photo_asset_id, image_filename, captured_at, logged_at, updated_at`

func (e *entries) Get(ctx context.Context, id uuid.UUID) (*model.MealEntry, error) {
	row := e.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM meal_entries WHERE id = ?`, id)
	return scanEntry(row)
}

func (e *entries) List(ctx context.Context) ([]*model.MealEntry, error) {
	return e.list(ctx, `SELECT `+entryColumns+` FROM meal_entries ORDER BY logged_at DESC`)
}

func (e *entries) ListByMeal(ctx context.Context, mealID uuid.UUID) ([]*model.MealEntry, error) {
	return e.list(ctx, `SELECT `+entryColumns+` FROM meal_entries WHERE meal_id = ? ORDER BY logged_at ASC`, mealID)
}

func (e *entries) list(ctx context.Context, query string, args ...interface{}) ([]*model.MealEntry, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.MealEntry
	for rows.Next() {
		entry, err := scanEntryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (e *entries) Update(ctx context.Context, v *model.MealEntry) error {
	res, err := e.db.ExecContext(ctx, `
        UPDATE meal_entries
        SET meal_id = ?, photo_asset_id = ?, image_filename = ?, captured_at = ?, logged_at = ?, updated_at = ?
        WHERE id = ?`,
		v.MealID, nullUUID(v.PhotoAssetID), v.ImageFilename, v.CapturedAt, v.LoggedAt, v.UpdatedAt, v.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (e *entries) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entry_photo_assets WHERE entry_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meal_entries WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *entries) InsertBatch(ctx context.Context, meal *model.Meal, createMeal bool, ents []*model.MealEntry, assets []*model.EntryPhotoAsset) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if createMeal {
		if _, err := tx.ExecContext(ctx, insertMealSQL, mealArgs(meal)...); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
            UPDATE meals SET updated_at = ?, user_notes = ?, ai_analysis_status = ? WHERE id = ?`,
			meal.UpdatedAt, nullStr(meal.UserNotes), string(meal.AnalysisStatus), meal.ID); err != nil {
			return err
		}
	}

	for _, v := range ents {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO meal_entries (`+entryColumns+`) VALUES (?,?,?,?,?,?,?)`,
			v.ID, v.MealID, nullUUID(v.PhotoAssetID), v.ImageFilename, v.CapturedAt, v.LoggedAt, v.UpdatedAt); err != nil {
			return err
		}
	}
	for _, a := range assets {
		if _, err := tx.ExecContext(ctx, insertAssetSQL, assetArgs(a)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (e *entries) Move(ctx context.Context, entryID, toMealID uuid.UUID, loggedAt *time.Time, now time.Time) error {
	var res sql.Result
	var err error
	if loggedAt != nil {
		res, err = e.db.ExecContext(ctx, `
            UPDATE meal_entries SET meal_id = ?, logged_at = ?, updated_at = ? WHERE id = ?`,
			toMealID, *loggedAt, now, entryID)
	} else {
		res, err = e.db.ExecContext(ctx, `
            UPDATE meal_entries SET meal_id = ?, updated_at = ? WHERE id = ?`,
			toMealID, now, entryID)
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- Photo assets ---

type photoAssets struct{ db *sql.DB }

const assetColumns = `id, entry_id, full_asset_ref, thumb_asset_ref, full_image_filename, thumbnail_filename, state, last_error, retry_count, next_retry_at, updated_at`

const insertAssetSQL = `
    INSERT INTO entry_photo_assets (` + assetColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?)`

func assetArgs(a *model.EntryPhotoAsset) []interface{} {
	return []interface{}{
		a.ID, a.EntryID, nullStr(a.FullAssetRef), nullStr(a.ThumbAssetRef),
		nullStr(a.FullImageFilename), nullStr(a.ThumbnailFilename),
		string(a.State), nullStr(a.LastError), a.RetryCount, nullTime(a.NextRetryAt), a.UpdatedAt,
	}
}

func (p *photoAssets) Create(ctx context.Context, a *model.EntryPhotoAsset) error {
	_, err := p.db.ExecContext(ctx, insertAssetSQL, assetArgs(a)...)
	return err
}

func (p *photoAssets) Get(ctx context.Context, id uuid.UUID) (*model.EntryPhotoAsset, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM entry_photo_assets WHERE id = ?`, id)
	return scanAsset(row)
}

func (p *photoAssets) List(ctx context.Context) ([]*model.EntryPhotoAsset, error) {
	rows, err := p.db.QueryContext(ctx, `
        SELECT `+assetColumns+` FROM entry_photo_assets ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.EntryPhotoAsset
	for rows.Next() {
		a, err := scanAssetRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *photoAssets) Update(ctx context.Context, a *model.EntryPhotoAsset) error {
	res, err := p.db.ExecContext(ctx, `
        UPDATE entry_photo_assets
        SET full_asset_ref = ?, thumb_asset_ref = ?, full_image_filename = ?, thumbnail_filename = ?,
            state = ?, last_error = ?, retry_count = ?, next_retry_at = ?, updated_at = ?
        WHERE id = ?`,
		nullStr(a.FullAssetRef), nullStr(a.ThumbAssetRef), nullStr(a.FullImageFilename),
		nullStr(a.ThumbnailFilename), string(a.State), nullStr(a.LastError), a.RetryCount,
		nullTime(a.NextRetryAt), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *photoAssets) ResetFailed(ctx context.Context, now time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `
        UPDATE entry_photo_assets SET state = ?, next_retry_at = ?, updated_at = ?
        WHERE state = ?`,
		string(model.SyncPending), now, now, string(model.SyncFailed))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Shared SQL and scan helpers ---

const insertMealSQL = `
    INSERT INTO meals (` + mealColumns + `) VALUES (?,?,?,?,?,?,?)`

func mealArgs(v *model.Meal) []interface{} {
	return []interface{}{
		v.ID, v.TypeID, v.CreatedAt, v.UpdatedAt,
		nullStr(v.AIDescription), nullStr(v.UserNotes), string(v.AnalysisStatus),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMealType(row rowScanner) (*model.MealType, error) {
	var m model.MealType
	if err := row.Scan(&m.ID, &m.DisplayName, &m.IsSystem, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func scanMeal(row rowScanner) (*model.Meal, error) {
	var m model.Meal
	var desc, notes sql.NullString
	var status string
	if err := row.Scan(&m.ID, &m.TypeID, &m.CreatedAt, &m.UpdatedAt, &desc, &notes, &status); err != nil {
		return nil, mapErr(err)
	}
	m.AIDescription = strPtr(desc)
	m.UserNotes = strPtr(notes)
	m.AnalysisStatus = model.AnalysisStatus(status)
	return &m, nil
}

func scanEntry(row *sql.Row) (*model.MealEntry, error) {
	return scanEntryRow(row)
}

func scanEntryRow(row rowScanner) (*model.MealEntry, error) {
	var e model.MealEntry
	var assetID uuid.NullUUID
	if err := row.Scan(&e.ID, &e.MealID, &assetID, &e.ImageFilename, &e.CapturedAt, &e.LoggedAt, &e.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	if assetID.Valid {
		id := assetID.UUID
		e.PhotoAssetID = &id
	}
	return &e, nil
}

func scanAsset(row *sql.Row) (*model.EntryPhotoAsset, error) {
	return scanAssetRow(row)
}

func scanAssetRow(row rowScanner) (*model.EntryPhotoAsset, error) {
	var a model.EntryPhotoAsset
	var fullRef, thumbRef, fullName, thumbName, lastErr sql.NullString
	var state string
	var nextRetry sql.NullTime
	if err := row.Scan(&a.ID, &a.EntryID, &fullRef, &thumbRef, &fullName, &thumbName,
		&state, &lastErr, &a.RetryCount, &nextRetry, &a.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	a.FullAssetRef = strPtr(fullRef)
	a.ThumbAssetRef = strPtr(thumbRef)
	a.FullImageFilename = strPtr(fullName)
	a.ThumbnailFilename = strPtr(thumbName)
	a.State = model.SyncState(state)
	a.LastError = strPtr(lastErr)
	a.NextRetryAt = timePtr(nextRetry)
	return &a, nil
}

func mapErr(err error) error {
	if err == sql.ErrNoRows {
		return model.ErrNotFound
	}
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func normalizeName(s string) string {
	return model.NormalizeMealTypeName(s)
}
