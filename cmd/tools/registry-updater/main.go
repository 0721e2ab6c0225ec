// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"deal-engine/internal/common/errors"
	"deal-engine/pkg/registry"

	aggregatedeals "deal-engine/internal/workers/deals/aggregate-deals"
	calculatetrustscore "deal-engine/internal/workers/deals/calculate-trust-score"
	normalizedeal "deal-engine/internal/workers/deals/normalize-deal"
	persistdeals "deal-engine/internal/workers/deals/persist-deals"
	resolveduplicates "deal-engine/internal/workers/deals/resolve-duplicates"
)

// taskTypes are the job types the worker manager registers.
var taskTypes = []string{
	normalizedeal.TaskType,
	calculatetrustscore.TaskType,
	resolveduplicates.TaskType,
	aggregatedeals.TaskType,
	persistdeals.TaskType,
}

func main() {
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	updatePath := updateCmd.String("path", "configs/activity-registry.json", "Path to registry file")
	id := updateCmd.String("id", "", "Activity ID to update (e.g., deal.store.persist)")
	field := updateCmd.String("field", "", "Field to update (status, version, description, timeout, retries)")
	value := updateCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", "configs/activity-registry.json", "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "update":
		_ = updateCmd.Parse(os.Args[2:])
		if *id == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := update(*updatePath, *id, *field, *value); err != nil {
			fmt.Printf("Error updating activity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated activity %s, field %s to %s\n", *id, *field, *value)

	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		n, err := validate(*validatePath)
		if err != nil {
			fmt.Printf("Registry validation failed:\n%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d activities.\n", n)

	default:
		help()
	}
}

func update(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Set(id, field, value); err != nil {
		return err
	}
	return reg.Save(path, time.Now())
}

func validate(path string) (int, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load registry: %w", err)
	}
	return len(reg.Activities), reg.Validate(taskTypes, bpmnCodes())
}

// bpmnCodes lists the error codes workers can throw to a process.
func bpmnCodes() []string {
	seen := make(map[string]bool)
	var codes []string
	for _, code := range errors.BPMNErrorMapping {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  update    Update an existing activity's field
  validate  Check the registry against the deal workers
  help      Show this help message

Examples:
  registry-updater update -id deal.store.persist -field retries -value 5
  registry-updater validate -path configs/activity-registry.json`)
}
