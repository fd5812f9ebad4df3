// handlers/wallet_routes.go
package handlers

import (
	"binary-referral-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(app *fiber.App, secured fiber.Router, ledger *services.LedgerService, withdrawals *services.WithdrawalService) {
	// 🔓 Order subsystem: Gateway auth only
	app.Post("/wallet/debit", ledger.DebitPurchase)
	app.Post("/wallet/refund", ledger.CreditRefund)

	// 🔐 Member wallet
	secured.Get("/wallet", ledger.GetWallet)
	secured.Get("/wallet/transactions", ledger.GetTransactions)
	secured.Get("/wallet/summary", ledger.GetSummary)

	secured.Post("/withdrawals", withdrawals.CreateWithdrawal)
	secured.Get("/withdrawals/my-requests", withdrawals.GetMyWithdrawals)
	secured.Get("/withdrawals/:id", withdrawals.GetWithdrawal)

	// 🛡️ Admin
	admin := AdminGroup(secured)
	admin.Get("/withdrawals", withdrawals.ListWithdrawals)
	admin.Put("/withdrawals/:id/action", withdrawals.ActOnWithdrawal)
	admin.Post("/reconcile", ledger.RunReconcile)
}
