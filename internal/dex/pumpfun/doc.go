// Package pumpfun содержит адреса программы Pump.fun и клиент сервиса запуска токенов.
//
// LaunchClient обращается к trade-local API и возвращает неподписанную
// create-транзакцию, которую подписывают кастодиальный кошелёк и ключ минта:
//
//	client := pumpfun.NewLaunchClient(cfg.Launch.APIURL, cfg.Launch.Slippage, cfg.Launch.PriorityFee, logger)
//	tx, err := client.CreateTransaction(ctx, pumpfun.CreateRequest{
//	    Signer:   custodial.PublicKey,
//	    Mint:     mint.PublicKey(),
//	    Metadata: pumpfun.TokenMetadata{Name: "Repo", Symbol: "REPO", URI: uri},
//	})
package pumpfun
