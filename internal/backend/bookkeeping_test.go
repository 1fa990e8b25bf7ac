package backend

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestEnsureBookkeeping_CreatesFourTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 4; i++ {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectQuery("SELECT version FROM").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(0, 0))

	b := &sqlBase{dialect: postgresDialect, db: db}
	require.NoError(t, b.EnsureBookkeeping(context.Background(), ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertApplied_SkipsExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1 FROM").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	b := &sqlBase{dialect: postgresDialect, db: db, migTable: "_yoyo_migration"}
	require.NoError(t, b.InsertApplied(context.Background(), AppliedRecord{
		MigrationID: "0001_init",
		Hash:        "deadbeef",
		AppliedAt:   time.Now().UTC(),
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertApplied_InsertsWhenAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1 FROM").WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(1, 1))

	b := &sqlBase{dialect: postgresDialect, db: db, migTable: "_yoyo_migration"}
	require.NoError(t, b.InsertApplied(context.Background(), AppliedRecord{
		MigrationID: "0001_init",
		Hash:        "deadbeef",
		AppliedAt:   time.Now().UTC(),
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}
