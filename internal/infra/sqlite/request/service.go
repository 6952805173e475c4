package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lloydmeta/reqindex/internal/domain/item"
	"github.com/lloydmeta/reqindex/internal/domain/metadata"
	"github.com/lloydmeta/reqindex/internal/domain/request"
	"github.com/lloydmeta/reqindex/internal/domain/tenant"
	"github.com/lloydmeta/reqindex/internal/infra/sqlite/common"
)

// Rows carry their own version, bumped on every write; it is exposed as the SeqNum of the
// Request's metadata.Version, with a constant PrimaryTerm.
const primaryTerm metadata.PrimaryTerm = 1

// BuildTableName returns the name of the table holding the Requests of the given tenant
func BuildTableName(t tenant.Id) string {
	return fmt.Sprintf("%s_request", string(t))
}

type SqliteService struct {
	db    *sql.DB
	table string
}

// NewService returns a request.Service over the tenant's table in db. The table is expected to
// exist already (see TablesSetup).
func NewService(db *sql.DB, t tenant.Id) request.Service {
	return &SqliteService{
		db:    db,
		table: BuildTableName(t),
	}
}

func (s *SqliteService) Create(ctx context.Context, r *request.Request) (*request.Request, error) {
	toPersist := *r
	if len(toPersist.ID) == 0 {
		toPersist.ID = request.GenerateId()
	}
	doc, err := request.MarshalDocument(&toPersist)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(
		ctx,
		fmt.Sprintf(`INSERT INTO %q (id, item_id, jsonb, version) VALUES (?, ?, ?, 1)`, s.table),
		string(toPersist.ID),
		string(toPersist.ItemID),
		string(doc),
	)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return nil, request.AlreadyExists{ID: toPersist.ID}
		}
		return nil, common.SqliteErr{Underlying: err}
	}
	toPersist.Metadata.Version = version(1)
	return &toPersist, nil
}

func (s *SqliteService) Get(ctx context.Context, id request.Id) (*request.Request, error) {
	row := s.db.QueryRowContext(
		ctx,
		fmt.Sprintf(`SELECT jsonb, version FROM %q WHERE id = ?`, s.table),
		string(id),
	)
	var doc string
	var rowVersion int64
	if err := row.Scan(&doc, &rowVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, request.NotFound{ID: id}
		}
		return nil, common.SqliteErr{Underlying: err}
	}
	r, invalid := toDomain(id, doc, rowVersion)
	if invalid != nil {
		return nil, *invalid
	}
	return r, nil
}

func (s *SqliteService) FindByItemId(ctx context.Context, itemId item.Id) ([]request.Request, error) {
	rows, err := s.db.QueryContext(
		ctx,
		fmt.Sprintf(`SELECT id, jsonb, version FROM %q WHERE item_id = ? ORDER BY id`, s.table),
		string(itemId),
	)
	if err != nil {
		return nil, common.SqliteErr{Underlying: err}
	}
	defer rows.Close()

	found := []request.Request{}
	var unreadable []request.UnreadableRequest
	for rows.Next() {
		var id, doc string
		var rowVersion int64
		if err := rows.Scan(&id, &doc, &rowVersion); err != nil {
			return nil, common.SqliteErr{Underlying: err}
		}
		r, invalid := toDomain(request.Id(id), doc, rowVersion)
		if invalid != nil {
			unreadable = append(unreadable, request.UnreadableRequest{ID: request.Id(id), Err: *invalid})
			continue
		}
		found = append(found, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, common.SqliteErr{Underlying: err}
	}
	if len(unreadable) > 0 {
		return found, request.UnreadableRequests{ItemID: itemId, Unreadable: unreadable}
	}
	return found, nil
}

func (s *SqliteService) Update(ctx context.Context, update *request.Request) (*request.Request, error) {
	doc, err := request.MarshalDocument(update)
	if err != nil {
		return nil, err
	}
	readVersion := int64(update.Metadata.Version.SeqNum)
	result, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf(`UPDATE %q SET item_id = ?, jsonb = ?, version = version + 1 WHERE id = ? AND version = ?`, s.table),
		string(update.ItemID),
		string(doc),
		string(update.ID),
		readVersion,
	)
	if err != nil {
		return nil, common.SqliteErr{Underlying: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, common.SqliteErr{Underlying: err}
	}
	if affected == 0 {
		// Either gone or written by someone else since it was read
		if _, err := s.Get(ctx, update.ID); err != nil {
			return nil, err
		}
		return nil, request.InvalidVersion{ID: update.ID}
	}
	updated := *update
	updated.Metadata.Version = version(readVersion + 1)
	return &updated, nil
}

func toDomain(id request.Id, doc string, rowVersion int64) (*request.Request, *request.InvalidPersistedData) {
	r, err := request.UnmarshalDocument([]byte(doc), version(rowVersion))
	if err != nil {
		return nil, &request.InvalidPersistedData{PersistedData: doc}
	}
	if len(r.ID) == 0 {
		r.ID = id
	}
	return r, nil
}

func version(rowVersion int64) metadata.Version {
	return metadata.Version{
		SeqNum:      metadata.SeqNum(rowVersion),
		PrimaryTerm: primaryTerm,
	}
}
