// Package tools defines the Tool Registry: tool identifiers, JSON-schema
// backed definitions, category grouping, and the name -> handler dispatch
// table the agent runtime and job executor call through.
package tools

// Ident is the strong type for a tool identifier (e.g. "opportunity_load",
// "chat_post_message"). Use this type in maps and function signatures to
// avoid accidentally mixing tool names with free-form strings.
type Ident string

// Category groups related tools for the planner's tool-inventory prompt
// (spec section 4 "Job-planning tool inventory categorization").
type Category string

const (
	CategorySlack       Category = "slack"
	CategoryDynamoDB    Category = "dynamodb"
	CategoryS3          Category = "s3"
	CategoryAWSServices Category = "aws_services"
	CategoryGitHub      Category = "github"
	CategoryTelemetry   Category = "telemetry"
	CategoryBrowser     Category = "browser"
	CategoryMemory      Category = "memory"
	CategoryRFP         Category = "rfp"
	CategoryJobs        Category = "jobs"
	CategoryOpportunity Category = "opportunity"
	CategoryAction      Category = "action"
)
