package migrations

func init() {
	Migrations.MustRegister(
		exec(mustRead("0002_create_attempts.up.sql")),
		exec(`DROP TABLE IF EXISTS attempts`),
	)
}
