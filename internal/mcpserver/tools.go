package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the fraudscope MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAssessTransaction = mcp.NewTool("assess_transaction",
	mcp.WithDescription(
		"Score a card transaction for fraud risk. "+
			"Returns the fraud probability (percent), the risk level (Low, Medium or High), "+
			"a confidence score and the recommended action (approve, review or block). "+
			"Use list_merchants and list_categories to find valid merchant and category ids."),
	mcp.WithNumber("step",
		mcp.Required(),
		mcp.Description("Time step of the transaction (hours since the start of the simulation)")),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("Transaction amount in dollars (e.g. 1500)")),
	mcp.WithString("age",
		mcp.Required(),
		mcp.Description("Customer age bracket as a digit: '0' (<=18) through '6' (>65), 'U' for unknown")),
	mcp.WithString("gender",
		mcp.Required(),
		mcp.Description("Customer gender"),
		mcp.Enum("M", "F", "E", "U")),
	mcp.WithString("merchant",
		mcp.Required(),
		mcp.Description("Merchant id (e.g. 'M480139044')")),
	mcp.WithString("category",
		mcp.Required(),
		mcp.Description("Merchant category (e.g. 'es_tech', 'es_travel')")),
)

var ToolGetModelStats = mcp.NewTool("get_model_stats",
	mcp.WithDescription(
		"Get the fraud model's evaluation figures: accuracy, precision, recall, F1, "+
			"ROC-AUC, PR-AUC and the business metrics from the held-out test set."),
)

var ToolListMerchants = mcp.NewTool("list_merchants",
	mcp.WithDescription("List the merchant ids the dashboard offers for scoring."),
)

var ToolListCategories = mcp.NewTool("list_categories",
	mcp.WithDescription("List the merchant categories the dashboard offers for scoring."),
)

var ToolRecentAssessments = mcp.NewTool("recent_assessments",
	mcp.WithDescription(
		"List the most recent fraud assessments recorded by the service, newest first. "+
			"Useful for reviewing what was blocked or queued for review."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of assessments to return (default 10, max 100)")),
)
