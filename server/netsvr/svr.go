package netsvr

import (
	"net/http"

	"github.com/zintix-labs/flipvault/server/app"
)

// NetSvr 是 flipvault HTTP 服務的抽象：路由註冊 + 啟停 + 監聽位址。
//   - 只交給最外層（server.RunWithSvr）使用；handler 與子模組只拿到 NetRouter。
//   - 實作 app.Component 與 app.Named，直接交給 app.App 管理，並以名稱出現在啟停日誌。
//   - 目前唯一實作是 ChiAdapter（net/http + chi）；換框架時只需提供相容 net/http handler 的實作。
type NetSvr interface {
	NetRouter
	app.Component
	app.Named

	// Ready 回報 server 是否組裝完整，可以開始 Run。
	Ready() bool
	// Address 是監聽位址（host:port 或 :port）。
	Address() string
}

// NetRouter 只有路由行為，沒有啟停控制權。
// /v1 與 /dev 的註冊函式、Group 回呼都只拿到 NetRouter。
type NetRouter interface {
	Use(middleware func(http.Handler) http.Handler)

	Get(path string, h http.HandlerFunc)
	Post(path string, h http.HandlerFunc)
	Put(path string, h http.HandlerFunc)
	Delete(path string, h http.HandlerFunc)

	Group(path string, fn func(NetRouter))
}
