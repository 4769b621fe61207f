package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"as-service/internal/db"
	"as-service/internal/model"
)

const JWTSecret = "as-service-test-secret"

// projectRoot returns the directory holding go.mod.
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func loadEnv() {
	if root := projectRoot(); root != "" {
		_ = godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB returns an isolated, migrated database for one test. It is an
// in-memory SQLite database unless TEST_DB_DSN points at Postgres, in which
// case every test gets its own schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	if dsn := os.Getenv("TEST_DB_DSN"); dsn != "" {
		return setupPostgres(t, dsn)
	}

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// The in-memory database lives as long as its only connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := gdb.AutoMigrate(
		&model.PriceGroup{},
		&model.Company{},
		&model.Brand{},
		&model.Tool{},
		&model.Part{},
		&model.OutsourceCompany{},
		&model.InboundBatch{},
		&model.Ticket{},
		&model.TicketStatusLog{},
	); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	if err := gdb.Exec(db.ActiveUnitIndex).Error; err != nil {
		t.Fatalf("create active unit index: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return gdb
}

func setupPostgres(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	schema := fmt.Sprintf("test_as_%d", time.Now().UnixNano()%1000000000)

	setup, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if err := setup.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if sqlSetup, err := setup.DB(); err == nil {
		_ = sqlSetup.Close()
	}

	gdb, err := gorm.Open(postgres.Open(fmt.Sprintf("%s search_path=%s", dsn, schema)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("connect test schema: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate postgres: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
		clean, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return
		}
		clean.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
		if sqlClean, err := clean.DB(); err == nil {
			_ = sqlClean.Close()
		}
	})
	return gdb
}

func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// TestToken signs an access token the auth middleware accepts.
func TestToken(userID, name string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"name": name,
		"role": "staff",
		"iat":  now.Unix(),
		"exp":  now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := token.SignedString([]byte(JWTSecret))
	return signed
}

func DefaultTestToken() string {
	return TestToken("test-user-001", "Test Staff")
}

func DoRequest(r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

func Date(year int, month time.Month, day int) datatypes.Date {
	return datatypes.Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func SeedCompany(t *testing.T, gdb *gorm.DB, name string) *model.Company {
	t.Helper()
	company := &model.Company{Name: name, CompanyType: model.CompanyTypeClient}
	if err := gdb.Create(company).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	return company
}

// SeedTool creates the tool, reusing the brand when it already exists.
func SeedTool(t *testing.T, gdb *gorm.DB, brandName, modelName string) *model.Tool {
	t.Helper()
	var brand model.Brand
	if err := gdb.Where(model.Brand{Name: brandName}).FirstOrCreate(&brand).Error; err != nil {
		t.Fatalf("seed brand: %v", err)
	}
	tool := &model.Tool{BrandID: brand.ID, ModelName: modelName}
	if err := gdb.Omit("Brand").Create(tool).Error; err != nil {
		t.Fatalf("seed tool: %v", err)
	}
	tool.Brand = &brand
	return tool
}

func SeedPart(t *testing.T, gdb *gorm.DB, name string, price int64) *model.Part {
	t.Helper()
	part := &model.Part{Name: name, Price: price, PartType: model.PartTypeCommon}
	if err := gdb.Omit("Tools").Create(part).Error; err != nil {
		t.Fatalf("seed part: %v", err)
	}
	return part
}

func SeedOutsourceCompany(t *testing.T, gdb *gorm.DB, name string) *model.OutsourceCompany {
	t.Helper()
	company := &model.OutsourceCompany{Name: name}
	if err := gdb.Create(company).Error; err != nil {
		t.Fatalf("seed outsource company: %v", err)
	}
	return company
}

func SeedTicket(t *testing.T, gdb *gorm.DB, company *model.Company, tool *model.Tool, serial string, status model.TicketStatus, inbound datatypes.Date) *model.Ticket {
	t.Helper()
	ticket := &model.Ticket{
		InboundDate:  inbound,
		CompanyID:    company.ID,
		ToolID:       tool.ID,
		SerialNumber: serial,
		Status:       status,
	}
	if err := gdb.Omit("Company", "Tool", "OutsourceCompany", "UsedParts").Create(ticket).Error; err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return ticket
}

// CountTickets counts tickets, optionally restricted to one unit.
func CountTickets(t *testing.T, gdb *gorm.DB, where ...interface{}) int64 {
	t.Helper()
	var count int64
	query := gdb.Model(&model.Ticket{})
	if len(where) > 0 {
		query = query.Where(where[0], where[1:]...)
	}
	if err := query.Count(&count).Error; err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	return count
}
