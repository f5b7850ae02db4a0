package main

import (
	"context"
	"log"
	"os"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/course"
	"github.com/pimentor/backend/core/enrollment"
	"github.com/pimentor/backend/core/user"
	emailsvc "github.com/pimentor/backend/services/email"
	logsvc "github.com/pimentor/backend/services/logger"
	"github.com/pimentor/backend/storage/database"
	sqlxrepos "github.com/pimentor/backend/storage/database/sqlx"
	"github.com/pimentor/backend/storage/kvstore"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	// start CLI
	crsSvc := course.NewService(sqlxrepos.NewCourseRepository(db), logger)
	cli := commandLine{
		db: db,
		usrSvc: user.NewService(sqlxrepos.NewUserRepository(db), kvstore.NewMemoryStore(), emailsvc.NewConsoleService(conf, logger), conf, logger),
		enrSvc: enrollment.NewService(sqlxrepos.NewEnrollmentRepository(db), crsSvc, enrollment.NewPolicy(conf.Enrollment), logger),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
