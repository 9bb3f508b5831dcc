package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/models"
	"github.com/dwellmatch/estates_backend/utils"
	"github.com/dwellmatch/estates_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestFairAllocationAndExclusivePurchase(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "dwellmatch_test")

	// Connect deps.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Migrate schema (in a fresh DB).
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	// Three eligible agents.
	agentIds := make([]int, 0, 3)
	for i := 1; i <= 3; i++ {
		agent, err := models.SignupAgent(ctx, &models.NewAgent{
			FullName:     fmt.Sprintf("Agent %d", i),
			Email:        fmt.Sprintf("agent%d@test.local", i),
			Password:     "test-password",
			BusinessName: fmt.Sprintf("Agency %d", i),
		})
		if err != nil {
			t.Fatalf("SignupAgent %d: %v", i, err)
		}
		if _, err := models.UpdateAgentVerification(ctx, agent.ID, models.VerificationStatusApproved); err != nil {
			t.Fatalf("approve agent %d: %v", i, err)
		}
		if _, err := models.UpdateAgentPayment(ctx, agent.ID, models.PaymentStatusPaid); err != nil {
			t.Fatalf("mark agent %d paid: %v", i, err)
		}
		agentIds = append(agentIds, agent.ID)
	}

	newRequest := func(i int) *models.NewServiceRequest {
		return &models.NewServiceRequest{
			ClientName:   fmt.Sprintf("Client %d", i),
			ClientEmail:  fmt.Sprintf("client%d@test.local", i),
			ClientPhone:  "0912345678",
			RequestType:  "buy",
			PropertyType: "condo",
			Location:     "Downtown",
		}
	}

	// 1) Six submissions against three agents must land two each.
	counts := map[int]int{}
	for i := 1; i <= 6; i++ {
		request, assignment, err := workflow.SubmitServiceRequest(ctx, newRequest(i), nil)
		if err != nil {
			t.Fatalf("SubmitServiceRequest %d: %v", i, err)
		}
		if assignment.Queued {
			t.Fatalf("submission %d queued with eligible agents present", i)
		}
		counts[assignment.AgentId]++

		var got models.ServiceRequest
		if err := db.WithContext(ctx).First(&got, request.ID).Error; err != nil {
			t.Fatalf("fetch request %d: %v", request.ID, err)
		}
		if got.Status != models.ServiceRequestStatusAssigned || got.AssignedAgentId == nil {
			t.Fatalf("request %d not assigned: status=%s", request.ID, got.Status)
		}
	}
	for _, id := range agentIds {
		if counts[id] != 2 {
			t.Fatalf("unfair distribution: agent %d got %d of 6 requests (counts=%v)", id, counts[id], counts)
		}
	}

	// 2) Release must requeue to a DIFFERENT agent.
	var victim models.ServiceRequest
	if err := db.WithContext(ctx).Where("assigned_agent_id = ?", agentIds[0]).First(&victim).Error; err != nil {
		t.Fatalf("fetch request of agent %d: %v", agentIds[0], err)
	}
	assignment, err := workflow.ReleaseServiceRequest(ctx, victim.ID, agentIds[0], false)
	if err != nil {
		t.Fatalf("ReleaseServiceRequest: %v", err)
	}
	if assignment.Queued {
		t.Fatalf("release queued with two other eligible agents")
	}
	if assignment.AgentId == agentIds[0] {
		t.Fatalf("released request bounced back to the releasing agent %d", agentIds[0])
	}

	// 3) Complete enforces ownership.
	var other models.ServiceRequest
	if err := db.WithContext(ctx).Where("assigned_agent_id = ?", agentIds[1]).First(&other).Error; err != nil {
		t.Fatalf("fetch request of agent %d: %v", agentIds[1], err)
	}
	if err := workflow.CompleteServiceRequest(ctx, other.ID, agentIds[2]); !errors.Is(err, utils.ErrorPreconditionFailed) {
		t.Fatalf("complete by non-owner: want precondition failure, got %v", err)
	}
	if err := workflow.CompleteServiceRequest(ctx, other.ID, agentIds[1]); err != nil {
		t.Fatalf("complete by owner: %v", err)
	}
	// Completing twice is a precondition failure, not corruption.
	if err := workflow.CompleteServiceRequest(ctx, other.ID, agentIds[1]); !errors.Is(err, utils.ErrorPreconditionFailed) {
		t.Fatalf("double complete: want precondition failure, got %v", err)
	}

	// 4) Concurrent purchases of a premium lead: exactly one buyer wins.
	price := decimal.NewFromInt(50)
	premium := newRequest(100)
	premium.IsPremium = true
	premium.LeadPrice = price
	lead, err := models.CreateServiceRequest(ctx, premium, nil)
	if err != nil {
		t.Fatalf("create premium lead: %v", err)
	}
	if err := db.WithContext(ctx).Model(&models.Agent{}).
		Where("id IN ?", agentIds).
		Update("wallet_balance", decimal.NewFromInt(100)).Error; err != nil {
		t.Fatalf("fund wallets: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, losses := 0, 0
	for _, buyer := range agentIds {
		for attempt := 0; attempt < 3; attempt++ {
			wg.Add(1)
			go func(buyer int) {
				defer wg.Done()
				_, err := workflow.PurchaseLead(ctx, lead.ID, buyer)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, utils.ErrorAlreadySold):
					losses++
				default:
					t.Errorf("unexpected purchase error: %v", err)
				}
			}(buyer)
		}
	}
	wg.Wait()

	// Retries by the winning buyer are idempotent successes, so count
	// distinct winners via the receipt table instead.
	var receiptCount int64
	if err := db.WithContext(ctx).Model(&models.LeadReceipt{}).
		Where("service_request_id = ?", lead.ID).
		Count(&receiptCount).Error; err != nil {
		t.Fatalf("count receipts: %v", err)
	}
	if receiptCount != 1 {
		t.Fatalf("expected exactly 1 receipt, got %d (wins=%d losses=%d)", receiptCount, wins, losses)
	}
	if wins == 0 {
		t.Fatalf("no purchase succeeded (losses=%d)", losses)
	}

	var soldLead models.ServiceRequest
	if err := db.WithContext(ctx).First(&soldLead, lead.ID).Error; err != nil {
		t.Fatalf("fetch sold lead: %v", err)
	}
	if soldLead.IsSold == nil || !*soldLead.IsSold || soldLead.SoldToAgentId == nil {
		t.Fatalf("lead not marked sold after purchase")
	}

	// Exactly one wallet lost the lead price.
	var debited int64
	if err := db.WithContext(ctx).Model(&models.Agent{}).
		Where("id IN ? AND wallet_balance = ?", agentIds, decimal.NewFromInt(50)).
		Count(&debited).Error; err != nil {
		t.Fatalf("count debited wallets: %v", err)
	}
	if debited != 1 {
		t.Fatalf("expected exactly 1 debited wallet, got %d", debited)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("estates-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("estates-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=dwellmatch_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
