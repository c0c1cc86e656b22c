package node

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"he300/internal/hebench"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const batchColumns = `batch_id,tenant,status,request,created_at,started_at,finished_at,
       error,result,badges,signature,signer_public_key`

func (s *PgStore) CreateBatch(meta BatchMeta) error {
	req, _ := json.Marshal(meta.Request)
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO batches (batch_id,tenant,status,request,created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		meta.BatchID, meta.Tenant, meta.Status, req, meta.CreatedAt)
	return err
}

func (s *PgStore) UpdateBatch(batchID string, mutate func(*BatchMeta)) (BatchMeta, error) {
	tx, err := s.pool.Begin(context.Background())
	if err != nil {
		return BatchMeta{}, err
	}
	defer tx.Rollback(context.Background())

	row := tx.QueryRow(context.Background(),
		`SELECT `+batchColumns+` FROM batches WHERE batch_id=$1 FOR UPDATE`, batchID)
	meta, err := scanBatchMeta(row)
	if err != nil {
		return BatchMeta{}, err
	}
	if mutate != nil {
		mutate(&meta)
	}
	req, _ := json.Marshal(meta.Request)
	var resultJSON []byte
	if meta.Result != nil {
		resultJSON, _ = json.Marshal(meta.Result)
	}
	var badgesJSON []byte
	if meta.Badges != nil {
		badgesJSON, _ = json.Marshal(meta.Badges)
	}
	_, err = tx.Exec(context.Background(),
		`UPDATE batches SET status=$1,started_at=$2,finished_at=$3,error=$4,result=$5,
		 badges=$6,signature=$7,signer_public_key=$8,request=$9 WHERE batch_id=$10`,
		meta.Status, nullStr(meta.StartedAt), nullStr(meta.FinishedAt), meta.Error,
		resultJSON, badgesJSON, nullStr(meta.Signature), nullStr(meta.SignerPubKey),
		req, batchID)
	if err != nil {
		return BatchMeta{}, err
	}
	return meta, tx.Commit(context.Background())
}

func (s *PgStore) GetBatch(batchID string) (BatchMeta, bool) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT `+batchColumns+` FROM batches WHERE batch_id=$1`, batchID)
	meta, err := scanBatchMeta(row)
	if err != nil {
		return BatchMeta{}, false
	}
	return meta, true
}

func (s *PgStore) ListBatches(limit int) []BatchMeta {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return []BatchMeta{}
	}
	defer rows.Close()
	var out []BatchMeta
	for rows.Next() {
		meta, err := scanBatchMeta(rows)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	if out == nil {
		return []BatchMeta{}
	}
	return out
}

func (s *PgStore) ListBatchesByTenant(tenant string, limit int) []BatchMeta {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT `+batchColumns+` FROM batches WHERE tenant=$1 ORDER BY created_at DESC LIMIT $2`,
		tenant, limit)
	if err != nil {
		return []BatchMeta{}
	}
	defer rows.Close()
	var out []BatchMeta
	for rows.Next() {
		meta, err := scanBatchMeta(rows)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	if out == nil {
		return []BatchMeta{}
	}
	return out
}

func (s *PgStore) AppendBatchEvent(batchID string, stage, message string, data map[string]any) (BatchEvent, error) {
	var dataJSON []byte
	if data != nil {
		dataJSON, _ = json.Marshal(data)
	}
	var seq int64
	var ts time.Time
	err := s.pool.QueryRow(context.Background(),
		`INSERT INTO batch_events (batch_id, seq, stage, message, data)
		 VALUES ($1, COALESCE((SELECT MAX(seq) FROM batch_events WHERE batch_id=$1),0)+1, $2, $3, $4)
		 RETURNING seq, timestamp`, batchID, stage, message, dataJSON).Scan(&seq, &ts)
	if err != nil {
		return BatchEvent{}, err
	}
	return BatchEvent{
		Seq:       seq,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Stage:     stage,
		Message:   message,
		Data:      data,
	}, nil
}

func (s *PgStore) ListBatchEvents(batchID string, sinceSeq int64) []BatchEvent {
	rows, err := s.pool.Query(context.Background(),
		`SELECT seq, timestamp, stage, message, data
		 FROM batch_events WHERE batch_id=$1 AND seq>$2 ORDER BY seq`, batchID, sinceSeq)
	if err != nil {
		return []BatchEvent{}
	}
	defer rows.Close()
	var out []BatchEvent
	for rows.Next() {
		var e BatchEvent
		var ts time.Time
		var dataJSON []byte
		if err := rows.Scan(&e.Seq, &ts, &e.Stage, &e.Message, &dataJSON); err != nil {
			continue
		}
		e.Timestamp = ts.UTC().Format(time.RFC3339)
		if len(dataJSON) > 0 {
			_ = json.Unmarshal(dataJSON, &e.Data)
		}
		out = append(out, e)
	}
	if out == nil {
		return []BatchEvent{}
	}
	return out
}

func (s *PgStore) GetOverview() Overview {
	overview := Overview{GeneratedAt: nowRFC3339()}
	_ = s.pool.QueryRow(context.Background(),
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('queued','running')),
			COUNT(*) FILTER (WHERE status='completed'),
			COUNT(*) FILTER (WHERE status='aborted'),
			COUNT(*) FILTER (WHERE status='failed')
		 FROM batches`).Scan(
		&overview.TotalBatches, &overview.RunningBatches, &overview.CompletedBatches,
		&overview.AbortedBatches, &overview.FailedBatches)

	rows, _ := s.pool.Query(context.Background(),
		`SELECT status, result FROM batches WHERE result IS NOT NULL`)
	if rows != nil {
		defer rows.Close()
		var accuracyTotal float64
		var accuracyCount int
		for rows.Next() {
			var status string
			var resultJSON []byte
			if rows.Scan(&status, &resultJSON) != nil {
				continue
			}
			var result hebench.BatchResult
			if json.Unmarshal(resultJSON, &result) != nil {
				continue
			}
			overview.TotalScenarios += result.Total
			overview.TotalErrors += result.Errors
			if status == StatusCompleted {
				accuracyTotal += result.Accuracy
				accuracyCount++
			}
		}
		if accuracyCount > 0 {
			overview.AverageAccuracy = accuracyTotal / float64(accuracyCount)
		}
	}
	return overview
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBatchMeta(row scannable) (BatchMeta, error) {
	var m BatchMeta
	var reqJSON, resultJSON, badgesJSON []byte
	var startedAt, finishedAt, errStr, signature, pubKey *string
	err := row.Scan(&m.BatchID, &m.Tenant, &m.Status, &reqJSON, &m.CreatedAt,
		&startedAt, &finishedAt, &errStr, &resultJSON, &badgesJSON,
		&signature, &pubKey)
	if err != nil {
		return BatchMeta{}, err
	}
	m.StartedAt = deref(startedAt)
	m.FinishedAt = deref(finishedAt)
	m.Error = deref(errStr)
	m.Signature = deref(signature)
	m.SignerPubKey = deref(pubKey)
	_ = json.Unmarshal(reqJSON, &m.Request)
	if len(resultJSON) > 0 {
		var r hebench.BatchResult
		if json.Unmarshal(resultJSON, &r) == nil {
			m.Result = &r
		}
	}
	if len(badgesJSON) > 0 {
		_ = json.Unmarshal(badgesJSON, &m.Badges)
	}
	return m, nil
}

func nullStr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

var _ Store = (*PgStore)(nil)
