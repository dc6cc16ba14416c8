package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ChatApp/global"
	"ChatApp/logger"
	"ChatApp/middleware"
	sec "ChatApp/middleware/security"
	chathandler "ChatApp/module/chat"
	chatmodel "ChatApp/module/chat/model"
	chatsvc "ChatApp/module/chat/service"
	msghandler "ChatApp/module/message"
	msgmodel "ChatApp/module/message/model"
	msgsvc "ChatApp/module/message/service"
	userhandler "ChatApp/module/user"
	usermodel "ChatApp/module/user/model"
	usersvc "ChatApp/module/user/service"
	"ChatApp/service/mgo"
	"ChatApp/service/natsx"
	"ChatApp/service/relay"
	"ChatApp/service/storage"
	redissrv "ChatApp/service/storage/redis"
	"ChatApp/service/ws"
	"ChatApp/tools/ids"
	jwtlib "ChatApp/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := global.Load()
	ids.SetNodeID(cfg.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()

	if err := mgo.Init(ctx, mgo.Config{URI: cfg.MongoURI, Database: cfg.MongoDB, MaxPoolSize: 20}); err != nil {
		logger.Errorf("[main] mongo init: %v", err)
		return
	}
	defer func() { _ = mgo.Close(context.Background()) }()

	// Presence mirroring and the persistence pipeline degrade gracefully:
	// the relay runs without them when redis/nats are unreachable.
	var sink relay.PresenceSink
	var onlineStore *storage.Store
	if err := redissrv.Init(redissrv.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB}); err != nil {
		logger.Warnf("[main] redis unavailable, presence mirror disabled: %v", err)
	} else {
		defer func() { _ = redissrv.Close() }()
		onlineStore = storage.NewStore(redissrv.Get())
		sink = onlineStore
	}

	jwtOpts := jwtlib.DefaultOptions(cfg.JwtSecretBytes())
	userService := usersvc.New(mgo.Collection(usermodel.CollUsers), jwtOpts)
	chatService := chatsvc.New(mgo.Collection(chatmodel.CollChats), mgo.Collection(usermodel.CollUsers))
	messageService := msgsvc.New(mgo.Collection(msgmodel.CollMessages))

	var publisher relay.MessagePublisher
	nc, err := natsx.Connect(natsx.Config{URL: cfg.NatsURL, Name: "chatapp-server"})
	if err != nil {
		logger.Warnf("[main] nats unavailable, message persistence disabled: %v", err)
	} else {
		defer func() { _ = nc.Close() }()
		publisher = msgsvc.NewPublisher(nc)
		if _, err := msgsvc.StartStoreConsumer(nc, messageService, chatService); err != nil {
			logger.Errorf("[main] start store consumer: %v", err)
			return
		}
	}

	relayCore := relay.New(relay.Config{Sink: sink, Publisher: publisher})
	go relayCore.Run(ctx)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Cors(cfg.FrontendURL))

	public := engine.Group("/api")
	protected := engine.Group("/api", sec.Middleware(jwtOpts))

	userhandler.NewHandler(userService).Mount(public, protected)
	chathandler.NewHandler(chatService).Mount(protected)
	msghandler.NewHandler(messageService, chatService).Mount(protected)

	if onlineStore != nil {
		protected.GET("/presence/:chatId", func(c *gin.Context) {
			count, err := onlineStore.RoomCount(c.Request.Context(), c.Param("chatId"))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "presence unavailable"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"chatId": c.Param("chatId"), "online": count})
		})
	}

	wsServer := ws.NewServer(relayCore, userService)
	engine.GET("/ws", wsServer.HandleWS)

	srv := &http.Server{Addr: cfg.Addr(), Handler: engine}
	go func() {
		logger.Infof("[main] listening on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[main] http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("[main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
