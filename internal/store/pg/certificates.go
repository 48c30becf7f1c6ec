package pg

import (
	"context"
	"database/sql"
	"errors"

	"vedarc.org/internal/domain"
)

const certificateColumns = `id, certificate_code, user_id, full_name, track, certificate_type, url, issued_at, issued_by`

func scanCertificate(row scanner) (domain.Certificate, error) {
	var (
		c   domain.Certificate
		typ string
	)
	if err := row.Scan(&c.ID, &c.Code, &c.UserID, &c.FullName, &c.Track, &typ, &c.URL, &c.IssuedAt, &c.IssuedBy); err != nil {
		return domain.Certificate{}, wrapErr(err)
	}
	c.Type = domain.CertificateType(typ)
	return c, nil
}

func (s *Store) CreateCertificate(ctx context.Context, c domain.Certificate) error {
	_, err := s.db.ExecContext(ctx, `
		insert into certificates (id, certificate_code, user_id, full_name, track, certificate_type, url, issued_at, issued_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Code, c.UserID, c.FullName, c.Track, string(c.Type), c.URL, c.IssuedAt, c.IssuedBy)
	switch {
	case isUniqueViolation(err, "certificates_certificate_code_key"):
		return domain.Conflictf("certificate code %s already exists", c.Code)
	case isUniqueViolation(err, ""):
		return domain.Conflictf("%s has already been issued for this student", c.Type.DisplayName())
	case isForeignKeyViolation(err):
		return domain.NotFoundf("User not found")
	}
	return wrapErr(err)
}

func (s *Store) ListCertificates(ctx context.Context, userID string) ([]domain.Certificate, error) {
	rows, err := s.db.QueryContext(ctx, `select `+certificateColumns+` from certificates where user_id = $1 order by issued_at`, userID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []domain.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, c)
	}
	return out, wrapErr(rows.Err())
}

func (s *Store) FindCertificateByCode(ctx context.Context, code string) (domain.Certificate, error) {
	c, err := scanCertificate(s.db.QueryRowContext(ctx, `select `+certificateColumns+` from certificates where certificate_code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Certificate{}, domain.NotFoundf("Certificate not found")
	}
	return c, wrapErr(err)
}
