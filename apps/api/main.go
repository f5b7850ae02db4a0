package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	echoapi "github.com/pimentor/backend/apps/api/echo"
	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/course"
	"github.com/pimentor/backend/core/doubt"
	"github.com/pimentor/backend/core/enrollment"
	"github.com/pimentor/backend/core/notification"
	"github.com/pimentor/backend/core/user"
	emailsvc "github.com/pimentor/backend/services/email"
	logsvc "github.com/pimentor/backend/services/logger"
	"github.com/pimentor/backend/storage/database"
	inmemdb "github.com/pimentor/backend/storage/database/inmem"
	sqlxrepos "github.com/pimentor/backend/storage/database/sqlx"
	"github.com/pimentor/backend/storage/kvstore"
)

type repositories struct {
	users         user.Repository
	courses       course.Repository
	enrollments   enrollment.Repository
	doubts        doubt.Repository
	notifications notification.Repository
	purger        database.Purger
	close         func() error
}

func main() {
	inmem := flag.Bool("inmem", false, "keep all data in process memory (no Postgres)")
	flag.Parse()

	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	repos, err := setUpRepositories(conf, *inmem)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err := repos.close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up OTP store
	var codes user.CodeStore
	if conf.Redis.Addr != "" {
		rdb, err := kvstore.OpenRedis(context.Background(), conf.Redis)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
		}
		defer rdb.Close()
		codes = kvstore.NewRedisStore(rdb, conf.AppName)
	} else {
		codes = kvstore.NewMemoryStore()
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(repos.users, codes, mailSvc, conf, logger)
	crsSvc := course.NewService(repos.courses, logger)
	enrSvc := enrollment.NewService(repos.enrollments, crsSvc, enrollment.NewPolicy(conf.Enrollment), logger)
	doubtSvc := doubt.NewService(repos.doubts, crsSvc, enrSvc)
	notifSvc := notification.NewService(repos.notifications, enrSvc, mailSvc, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)

	core.ParseEmailTemplates(logger)

	// =========================================================================
	// Start Reaper

	reaper, err := database.NewReaper(repos.purger, conf, dbLogger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up reaper: %v", err), err)
	}
	reaper.Start()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.Options{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         usrSvc,
		CourseSvc:       crsSvc,
		EnrollmentSvc:   enrSvc,
		DoubtSvc:        doubtSvc,
		NotificationSvc: notifSvc,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	}

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	// asking listener to shutdown and shed load
	if err = server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		if err = server.Close(); err != nil {
			logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
	if err = reaper.Stop(ctx); err != nil {
		dbLogger.Error(fmt.Sprintf("could not stop reaper: %v", err), err)
	}
}

func setUpRepositories(conf *core.Config, inmem bool) (repositories, error) {
	if inmem {
		db := inmemdb.Open()
		return repositories{
			users:         inmemdb.NewUserRepository(db),
			courses:       inmemdb.NewCourseRepository(db),
			enrollments:   inmemdb.NewEnrollmentRepository(db),
			doubts:        inmemdb.NewDoubtRepository(db),
			notifications: inmemdb.NewNotificationRepository(db),
			purger:        db,
			close:         func() error { return nil },
		}, nil
	}

	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		return repositories{}, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return repositories{}, err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return repositories{}, errors.Wrap(err, "migrating")
	}

	return repositories{
		users:         sqlxrepos.NewUserRepository(db),
		courses:       sqlxrepos.NewCourseRepository(db),
		enrollments:   sqlxrepos.NewEnrollmentRepository(db),
		doubts:        sqlxrepos.NewDoubtRepository(db),
		notifications: sqlxrepos.NewNotificationRepository(db),
		purger:        sqlxrepos.NewPurger(db),
		close:         db.Close,
	}, nil
}
