package models

type FundType string

const (
	FundTypeGeneral    FundType = "general"
	FundTypeRestricted FundType = "restricted"
	FundTypeDesignated FundType = "designated"
)

type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

type PendingStatus string

const (
	PendingStatusNone    PendingStatus = "none"
	PendingStatusPending PendingStatus = "pending"
	PendingStatusCleared PendingStatus = "cleared"
)

type TransactionSource string

const (
	TransactionSourceManual TransactionSource = "manual"
	TransactionSourceCsv    TransactionSource = "csv"
	TransactionSourceApi    TransactionSource = "api"
)

type CsvBatchStatus string

const (
	CsvBatchStatusUploaded   CsvBatchStatus = "uploaded"
	CsvBatchStatusProcessing CsvBatchStatus = "processing"
	CsvBatchStatusCompleted  CsvBatchStatus = "completed"
	CsvBatchStatusFailed     CsvBatchStatus = "failed"
)

type CsvRowStatus string

const (
	CsvRowStatusPending   CsvRowStatus = "pending"
	CsvRowStatusDuplicate CsvRowStatus = "duplicate"
	CsvRowStatusReady     CsvRowStatus = "ready"
	CsvRowStatusApproved  CsvRowStatus = "approved"
	CsvRowStatusSkipped   CsvRowStatus = "skipped"
)

type CategorySource string

const (
	CategorySourceKeyword CategorySource = "keyword"
	CategorySourceAi      CategorySource = "ai"
	CategorySourceManual  CategorySource = "manual"
	CategorySourceNone    CategorySource = "none"
)

type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"
)

type LedgerEventAction string

const (
	LedgerEventActionCreate LedgerEventAction = "CREATE"
	LedgerEventActionUpdate LedgerEventAction = "UPDATE"
	LedgerEventActionDelete LedgerEventAction = "DELETE"
)
