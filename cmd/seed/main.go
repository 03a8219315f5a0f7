// Package main seeds a development database with a demo faculty and course catalogue.
// Running it twice is safe: records that already exist are left as they are.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/aims-enrollment-api/internal/dto"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	"github.com/noah-isme/aims-enrollment-api/internal/repository"
	"github.com/noah-isme/aims-enrollment-api/internal/service"
	"github.com/noah-isme/aims-enrollment-api/pkg/config"
	"github.com/noah-isme/aims-enrollment-api/pkg/database"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
	"github.com/noah-isme/aims-enrollment-api/pkg/logger"
)

type userProvisioner interface {
	Create(ctx context.Context, req dto.CreateUserRequest, actorID string) (*models.User, error)
}

type userLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type courseCreator interface {
	Create(ctx context.Context, req dto.CreateCourseRequest, actorID string) (*models.CourseDetail, error)
}

// courseFixture names its instructor by email so fixtures stay readable.
type courseFixture struct {
	dto.CreateCourseRequest
	InstructorEmail string
}

var demoUsers = []dto.CreateUserRequest{
	{Email: "sarah.smith@university.edu", Name: "Dr. Sarah Smith", Role: models.RoleInstructor, Department: "Computer Science"},
	{Email: "emily.chen@university.edu", Name: "Dr. Emily Chen", Role: models.RoleInstructor, Department: "Computer Science"},
	{Email: "david.wilson@university.edu", Name: "Prof. David Wilson", Role: models.RoleInstructor, Department: "Computer Science"},
	{Email: "michael.johnson@university.edu", Name: "Prof. Michael Johnson", Role: models.RoleAdvisor, Department: "Computer Science"},
	{Email: "admin@university.edu", Name: "System Admin", Role: models.RoleAdmin, Department: "Administration"},
}

var demoCourses = []courseFixture{
	{InstructorEmail: "sarah.smith@university.edu", CreateCourseRequest: dto.CreateCourseRequest{
		Code: "CS301", Name: "Data Structures and Algorithms", Credits: 4, Department: "Computer Science", MaxSeats: 60,
		Description: "Trees, graphs, hash tables and the analysis of algorithms over them.",
	}},
	{InstructorEmail: "sarah.smith@university.edu", CreateCourseRequest: dto.CreateCourseRequest{
		Code: "CS401", Name: "Machine Learning", Credits: 4, Department: "Computer Science", MaxSeats: 40,
		Description: "Supervised and unsupervised learning.",
	}},
	{InstructorEmail: "emily.chen@university.edu", CreateCourseRequest: dto.CreateCourseRequest{
		Code: "CS302", Name: "Database Management Systems", Credits: 3, Department: "Computer Science", MaxSeats: 50,
		Description: "Relational design, SQL and normalization.",
	}},
	{InstructorEmail: "david.wilson@university.edu", CreateCourseRequest: dto.CreateCourseRequest{
		Code: "CS405", Name: "Distributed Systems", Credits: 3, Department: "Computer Science", MaxSeats: 2,
		Description: "Replication, consensus and fault tolerance.",
	}},
}

type seeder struct {
	users   userProvisioner
	lookup  userLookup
	courses courseCreator
	logger  *zap.Logger
}

type seedResult struct {
	UsersCreated   int
	CoursesCreated int
}

func (s *seeder) run(ctx context.Context) (seedResult, error) {
	var res seedResult
	ids := make(map[string]string, len(demoUsers))
	for _, req := range demoUsers {
		user, err := s.users.Create(ctx, req, "")
		switch {
		case err == nil:
			res.UsersCreated++
		case errors.Is(err, appErrors.ErrConflict):
			user, err = s.lookup.FindByEmail(ctx, req.Email)
			if err != nil {
				return res, err
			}
		default:
			return res, err
		}
		ids[req.Email] = user.ID
	}

	for _, fixture := range demoCourses {
		req := fixture.CreateCourseRequest
		req.InstructorID = ids[fixture.InstructorEmail]
		if _, err := s.courses.Create(ctx, req, ""); err != nil {
			if errors.Is(err, appErrors.ErrConflict) {
				s.logger.Debug("course already seeded", zap.String("code", req.Code))
				continue
			}
			return res, err
		}
		res.CoursesCreated++
	}
	return res, nil
}

func main() {
	migrate := flag.Bool("migrate", true, "apply pending migrations before seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()
	if *migrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Sugar().Fatalw("migrations failed", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	courseSvc := service.NewCourseService(repository.NewCourseRepository(db), userRepo, nil, auditRepo, validate, logr, service.CourseServiceConfig{
		DefaultMaxSeats: cfg.Courses.DefaultMaxSeats,
	})
	s := &seeder{
		users:   service.NewUserService(userRepo, auditRepo, validate, logr),
		lookup:  userRepo,
		courses: courseSvc,
		logger:  logr,
	}

	res, err := s.run(ctx)
	if err != nil {
		logr.Sugar().Fatalw("seeding failed", "error", err)
	}
	logr.Sugar().Infow("seed complete", "users_created", res.UsersCreated, "courses_created", res.CoursesCreated)
}
