package migrations

func init() {
	Migrations.MustRegister(
		exec(mustRead("0001_create_quizzes.up.sql")),
		exec(`DROP TABLE IF EXISTS quizzes`),
	)
}
